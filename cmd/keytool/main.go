// Command keytool encrypts the chain signing key into a key file that the
// bot loads through chain.encrypted_key_path.
//
//	LISTINGBOT_CHAIN_PRIVATE_KEY=0x... LISTINGBOT_CHAIN_KEY_PASSWORD=... keytool -out key.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/listingbot/internal/crypto"
)

func main() {
	out := flag.String("out", "listingbot-key.json", "path of the key file to write")
	verify := flag.Bool("verify", false, "decrypt an existing key file at -out and print its address")
	flag.Parse()

	_ = godotenv.Load()

	password := os.Getenv("LISTINGBOT_CHAIN_KEY_PASSWORD")
	if password == "" {
		fatalf("LISTINGBOT_CHAIN_KEY_PASSWORD must be set")
	}

	if *verify {
		key, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: *out, KeyPassword: password})
		if err != nil {
			fatalf("verify: %v", err)
		}
		fmt.Printf("%s decrypts to %s\n", *out, crypto.Address(key).Hex())
		return
	}

	raw := os.Getenv("LISTINGBOT_CHAIN_PRIVATE_KEY")
	if raw == "" {
		fatalf("LISTINGBOT_CHAIN_PRIVATE_KEY must be set")
	}
	if _, err := os.Stat(*out); err == nil {
		fatalf("%s already exists", *out)
	}

	data, err := crypto.EncryptKey(raw, password)
	if err != nil {
		fatalf("encrypt: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		fatalf("write: %v", err)
	}

	key, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: raw})
	if err != nil {
		fatalf("load: %v", err)
	}
	fmt.Printf("wrote %s for %s\n", *out, crypto.Address(key).Hex())
	fmt.Println("unset LISTINGBOT_CHAIN_PRIVATE_KEY and set chain.encrypted_key_path instead")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "keytool: "+format+"\n", args...)
	os.Exit(1)
}
