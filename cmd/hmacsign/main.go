// Command hmacsign signs a request body for the gateway. It reads the body
// from stdin and prints the X-Timestamp and X-Signature header values to
// send with it.
//
//	hmacsign < body.json
//	curl -H "X-Timestamp: ..." -H "X-Signature: ..." -d @body.json ...
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
)

func main() {
	secret := flag.String("secret", "", "signing key, defaults to HMAC_SECRET_KEY")
	flag.Parse()

	key := *secret
	if key == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal(err)
		}
		key = cfg.HMACSecretKey
	}

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("X-Timestamp: %d\n", time.Now().Unix())
	fmt.Printf("X-Signature: %s\n", httpserver.SignBody(key, body))
}
