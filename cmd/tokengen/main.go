// Command tokengen mints bearer tokens with the dev signing secret for local
// API exploration. Tokens reference a random session ID, so against a running
// server they only pass validation if a matching ledger row exists; use the
// login endpoints for end-to-end flows.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"painchain/internal/identity/token"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
)

const devSigningSecret = "dev-secret-key-change-in-production"

func main() {
	userIDFlag := flag.String("user-id", "", "User ID (UUID). Generated if empty.")
	tenantIDFlag := flag.String("tenant-id", "", "Tenant ID (UUID). Generated if empty.")
	sessionIDFlag := flag.String("session-id", "", "Session ID (UUID). Generated if empty.")
	email := flag.String("email", "dev@example.com", "Email claim")
	roleFlag := flag.String("role", "member", "Role claim (owner, admin, member, viewer)")
	ttl := flag.Duration("ttl", 7*24*time.Hour, "Token time-to-live")
	secret := flag.String("secret", devSigningSecret, "Signing secret (must match AUTH_SIGNING_SECRET)")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	userID, err := parseOrNewUser(*userIDFlag)
	if err != nil {
		fatal("invalid -user-id: %v", err)
	}
	tenantID, err := parseOrNewTenant(*tenantIDFlag)
	if err != nil {
		fatal("invalid -tenant-id: %v", err)
	}
	sessionID, err := parseOrNewSession(*sessionIDFlag)
	if err != nil {
		fatal("invalid -session-id: %v", err)
	}
	role, err := id.ParseRole(*roleFlag)
	if err != nil {
		fatal("invalid -role: %v", err)
	}

	signed, err := token.New(*secret, *ttl, clock.System{}).Mint(userID, *email, tenantID, role, sessionID)
	if err != nil {
		fatal("mint failed: %v", err)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(map[string]string{
			"token":      signed,
			"user_id":    userID.String(),
			"tenant_id":  tenantID.String(),
			"session_id": sessionID.String(),
			"role":       role.String(),
			"expires_in": ttl.String(),
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Println(signed)
	fmt.Fprintf(os.Stderr, "user_id=%s tenant_id=%s session_id=%s role=%s ttl=%s\n",
		userID, tenantID, sessionID, role, ttl)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseOrNewUser(s string) (id.UserID, error) {
	if s == "" {
		return id.NewUserID(), nil
	}
	return id.ParseUserID(s)
}

func parseOrNewTenant(s string) (id.TenantID, error) {
	if s == "" {
		return id.NewTenantID(), nil
	}
	return id.ParseTenantID(s)
}

func parseOrNewSession(s string) (id.SessionID, error) {
	if s == "" {
		return id.NewSessionID(), nil
	}
	return id.ParseSessionID(s)
}
