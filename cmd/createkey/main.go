// Command createkey generates a random API key for the server. The server
// reads the key from the API_KEY environment variable; there is no key store.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
)

const (
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	keyLength = 32
)

func main() {
	// Rejection sampling keeps the pick uniform: bytes at or above the largest
	// multiple of len(alphabet) are discarded rather than folded in by the
	// modulo.
	limit := byte(256 - 256%len(alphabet))

	key := make([]byte, 0, keyLength)
	buf := make([]byte, 2*keyLength)

	for len(key) < keyLength {
		if _, err := rand.Read(buf); err != nil {
			slog.Error("read random bytes failed", "error", err)
			os.Exit(1)
		}

		for _, b := range buf {
			if b >= limit {
				continue
			}

			key = append(key, alphabet[int(b)%len(alphabet)])
			if len(key) == keyLength {
				break
			}
		}
	}

	apiKey := string(key)

	fmt.Println("✓ API key generated!")
	fmt.Println()
	fmt.Println("Set it on the server before starting:")
	fmt.Println()
	fmt.Printf("export API_KEY=%s\n", apiKey)
	fmt.Println()
	fmt.Println("Example curl commands:")
	fmt.Println()
	fmt.Printf("# List profiles\n")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/v1/profiles\n", apiKey)
	fmt.Println()
	fmt.Printf("# Submit a diarization result\n")
	fmt.Printf("curl -X POST -H \"Authorization: Bearer %s\" -H \"Content-Type: application/json\" \\\n", apiKey)
	fmt.Printf("  -d '{\"media_external_ref\":\"rec_001\",\"speakers\":[{\"label\":\"SPEAKER_00\",\"embedding\":[0.1,0.2]}]}' \\\n")
	fmt.Printf("  http://localhost:8080/v1/diarization/results\n")
}
