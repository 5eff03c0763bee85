// Command authorize runs the one-time OAuth bootstrap: it walks the
// operator through the Strava authorization-code flow and seeds the
// Firestore auth document with the resulting refresh token and a
// webhook verify token.
//
// Credentials come from STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	shared "github.com/dogpatrol/server/pkg"
	"github.com/dogpatrol/server/pkg/bootstrap"
	"github.com/dogpatrol/server/pkg/infrastructure/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	verifyToken := flag.String("verify-token", "", "Webhook verify token to store (generated if empty)")
	redirectURL := flag.String("redirect-url", "http://localhost/exchange_token", "Redirect URL registered with the Strava app")
	flag.Parse()

	bootstrap.InitLogger()
	logger := bootstrap.NewLogger("authorize")

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("Config load failed", "error", err)
		return 1
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		logger.Error("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
		return 1
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  *redirectURL,
		Scopes:       []string{"activity:read_all,activity:write"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  shared.StravaAuthURL,
			TokenURL: shared.StravaTokenURL,
		},
	}

	fmt.Println("Open the following URL, approve access, then paste the")
	fmt.Println("`code` query parameter from the redirect back here:")
	fmt.Println()
	fmt.Println(conf.AuthCodeURL("", oauth2.SetAuthURLParam("approval_prompt", "force")))
	fmt.Println()
	fmt.Print("code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		logger.Error("Failed to read code", "error", err)
		return 1
	}
	code = strings.TrimSpace(code)
	if code == "" {
		logger.Error("No code provided")
		return 1
	}

	ctx := context.Background()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		logger.Error("Code exchange failed", "error", err)
		return 1
	}
	if tok.RefreshToken == "" {
		logger.Error("Exchange returned no refresh token")
		return 1
	}

	verify := *verifyToken
	if verify == "" {
		verify = uuid.NewString()
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore init failed", "error", err)
		return 1
	}
	defer fsClient.Close()

	db := database.NewFirestoreAdapter(fsClient)
	if err := db.UpdateStravaConfig(ctx, map[string]interface{}{
		"refresh_token": tok.RefreshToken,
		"verify_token":  verify,
	}); err != nil {
		logger.Error("Failed to write strava config", "error", err)
		return 1
	}

	logger.Info("Strava config seeded",
		"document", shared.CollectionAuth+"/"+shared.DocumentStravaCfg,
		"verify_token", verify)
	fmt.Println()
	fmt.Printf("Use %q as the verify token when creating the webhook subscription.\n", verify)
	return 0
}
