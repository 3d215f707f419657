package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/supportsoft/subhub/app/controllers"
	"github.com/supportsoft/subhub/app/repository"
	"github.com/supportsoft/subhub/internal/pkg/cache"
	"github.com/supportsoft/subhub/internal/pkg/database"
	"github.com/supportsoft/subhub/internal/pkg/env"
	"github.com/supportsoft/subhub/internal/pkg/lifecycle"
	"github.com/supportsoft/subhub/internal/pkg/mail"
	"github.com/supportsoft/subhub/internal/pkg/notifier"
	"github.com/supportsoft/subhub/internal/pkg/router"
	"github.com/supportsoft/subhub/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/subhub to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	emailNotifier, err := notifier.NewEmailNotifier(basePath+"views/emails", mail.NewSMTPMailer())
	if err != nil {
		panic(err)
	}

	repos := repository.GetGlobalRepositories()
	clock := lifecycle.SystemClock{}
	engine := lifecycle.NewEngine(repos, emailNotifier, clock)
	sweeper := scheduler.NewManager(repos, emailNotifier, clock)

	controllers.Setup(engine, sweeper, clock)
	controllers.SetAnnouncer(emailNotifier)

	sweeper.Start()

	app := fiber.New(fiber.Config{
		AppName: "subhub",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
