package federation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// TransitState is the payload carried through the provider redirect round
// trip. It is encrypted and self-contained so no server-side state survives
// the external redirect. A state value stays technically replayable inside
// the staleness window; it is single-use in practice because it travels with
// a one-time authorization code.
type TransitState struct {
	ProviderID     id.ProviderID `json:"provider_id"`
	Nonce          string        `json:"nonce"`
	IssuedAtMillis int64         `json:"issued_at_ms"`
}

// TransitCodec encrypts and decrypts transit states with AES-256-GCM. The key
// is derived from the deployment signing secret; the random nonce is
// prepended to the ciphertext.
type TransitCodec struct {
	aead   cipher.AEAD
	maxAge time.Duration
	clock  clock.Clock
}

func NewTransitCodec(secret string, maxAge time.Duration, clk clock.Clock) (*TransitCodec, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not derive transit key")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not build transit cipher")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TransitCodec{aead: aead, maxAge: maxAge, clock: clk}, nil
}

// NewState builds a fresh transit state for the given provider.
func (c *TransitCodec) NewState(providerID id.ProviderID) (*TransitState, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate state nonce")
	}
	return &TransitState{
		ProviderID:     providerID,
		Nonce:          base64.RawURLEncoding.EncodeToString(nonce),
		IssuedAtMillis: c.clock.Now().UnixMilli(),
	}, nil
}

// Encrypt seals the state into an opaque URL-safe string.
func (c *TransitCodec) Encrypt(state *TransitState) (string, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not marshal transit state")
	}
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate transit iv")
	}
	sealed := c.aead.Seal(iv, iv, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an opaque state string. Fails with InvalidState on any
// tampering, on garbage input, and on states older than the staleness bound.
func (c *TransitCodec) Decrypt(encoded string) (*TransitState, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "malformed state parameter")
	}
	if len(sealed) < c.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "malformed state parameter")
	}
	iv, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "state decryption failed")
	}

	var state TransitState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "state payload invalid")
	}

	issuedAt := time.UnixMilli(state.IssuedAtMillis)
	if c.clock.Now().Sub(issuedAt) > c.maxAge {
		return nil, dErrors.New(dErrors.CodeInvalidState, "state is too old")
	}
	return &state, nil
}
