package main

import (
	"context"
	"fmt"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/api"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/config"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	a, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	if *config.RunCleanup {
		sum, err := a.Cleanup.RunOnce(context.Background())
		if err != nil {
			panic(err)
		}

		zap.L().Info("One-shot cleanup finished",
			zap.Int("files", sum.FilesDeleted),
			zap.Int("jobs", sum.JobsDeleted),
			zap.Int("stems", sum.StemsDeleted),
			zap.Int64("bytes_freed", sum.BytesFreed))
		return
	}

	a.Cleanup.Start()
	defer a.Cleanup.Stop()

	zap.L().Info("Server starting")

	err = a.Router.Run(fmt.Sprintf(":%d", viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}
