// Package autoload initializes the global logger from the environment on
// import. Blank-import it from main:
//
//	_ "github.com/tanpawarit/co-teacher-agent/pkg/logger/autoload"
package autoload

import (
	configx "github.com/tanpawarit/co-teacher-agent/pkg/config"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
