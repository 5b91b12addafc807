package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	currentUser, err := user.Current()
	if err != nil {
		currentUser = &user.User{Username: "user-1"}
	}

	secretFile := flag.String("secret-file", "", "Path to the shared HS256 secret (defaults to $NEOGQL_SERVER_AUTH_JWT_SECRET)")
	issuer := flag.String("issuer", "", "JWT issuer (optional)")
	audience := flag.String("audience", "neo4j-graphql", "JWT audience (comma-separated)")
	subject := flag.String("subject", currentUser.Username, "JWT subject")
	dbUser := flag.String("db_user", "", "Database user to impersonate (optional)")
	roles := flag.String("roles", "", "JWT roles claim (comma-separated, optional)")
	var extra claimFlags
	flag.Var(&extra, "claim", "Extra string claim as key=value (repeatable)")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	secret, err := loadSecret(*secretFile)
	if err != nil {
		exitErr(err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*expires).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if aud := splitList(*audience); len(aud) > 0 {
		claims["aud"] = aud
	}
	if *dbUser != "" {
		claims["db_user"] = *dbUser
	}
	if *roles != "" {
		claims["roles"] = splitList(*roles)
	}
	for key, value := range extra {
		claims[key] = value
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		exitErr(err)
	}

	fmt.Println(signed)
}

// claimFlags collects repeated -claim key=value flags.
type claimFlags map[string]string

func (c *claimFlags) String() string {
	return fmt.Sprint(map[string]string(*c))
}

func (c *claimFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("claim %q must be key=value", value)
	}
	if *c == nil {
		*c = claimFlags{}
	}
	(*c)[strings.TrimSpace(key)] = val
	return nil
}

func loadSecret(path string) ([]byte, error) {
	if path == "" {
		secret := os.Getenv("NEOGQL_SERVER_AUTH_JWT_SECRET")
		if secret == "" {
			return nil, errors.New("no secret: pass -secret-file or set NEOGQL_SERVER_AUTH_JWT_SECRET")
		}
		return []byte(secret), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return []byte(secret), nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
