// issue-token mints an access token for local participants such as retro-watch.
// Sign-in lives in a separate service; this tool signs with the same key.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/itchan-dev/retroboard/shared/api"
	"github.com/itchan-dev/retroboard/shared/config"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/jwt"
)

func main() {
	var (
		configFolder string
		email        string
		asJSON       bool
	)
	flag.StringVar(&configFolder, "config_folder", "backend/config", "path to folder with configs")
	flag.StringVar(&email, "email", "", "identity to issue the token for")
	flag.BoolVar(&asJSON, "json", false, "print the token as JSON")
	flag.Parse()

	email = domain.NormalizeEmail(email)
	if email == "" {
		log.Fatal("-email is required")
	}

	cfg := config.MustLoad(configFolder)
	token, err := jwt.New(cfg.JwtKey(), cfg.JwtTTL()).NewToken(domain.User{Email: email})
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	if asJSON {
		json.NewEncoder(os.Stdout).Encode(api.TokenResponse{AccessToken: token})
		return
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "valid for %s\n", cfg.JwtTTL())
}
