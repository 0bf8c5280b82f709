package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Rrens/inspection-service/internal/security"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var cli struct {
	Subject   string        `help:"Subject identifier" required:""`
	OwnerCode string        `help:"Owner code bound to sessions created with this token" name:"code"`
	TTL       time.Duration `help:"Token lifetime" default:"720h"`
	Secret    string        `help:"JWT signing secret" required:"" env:"JWT_SECRET"`
}

func main() {
	_ = godotenv.Load()

	ctx := kong.Parse(&cli, kong.Description("Mint a bearer token for the inspection service."))

	manager := security.NewJWTManager(cli.Secret, cli.TTL)
	token, err := manager.GenerateAccessToken(cli.Subject, cli.OwnerCode)
	ctx.FatalIfErrorf(err)

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires in %s\n", manager.AccessTokenTTL())
}
