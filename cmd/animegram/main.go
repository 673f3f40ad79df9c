// Command animegram runs the Animegram API and its maintenance tasks.
package main

import (
	"os"

	"animegram/internal/middleware"
)

// @title Animegram API
// @version 1.0
// @description Feed, chat and notification state for the Animegram client
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@animegram.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := rootCmd.Execute(); err != nil {
		middleware.Logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
