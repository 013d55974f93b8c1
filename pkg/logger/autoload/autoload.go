// Package autoload initializes the global logger from TILES_LOG_* env vars
// as a side effect of being imported.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("TILES_LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.Init(conf)
}
