package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/pool-integration/pkg/hasher"
)

// HashTokenCommand prints a bcrypt hash for --api-token-hash. A random token
// is generated when none is given.
func HashTokenCommand(ctx *cli.Context) error {
	token := ctx.String("token")
	if token == "" {
		var err error
		token, err = hasher.GenerateToken(32)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "token: %s\n", token)
	}
	hash, err := hasher.HashToken([]byte(token))
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "hash:  %s\n", hash)
	return nil
}
