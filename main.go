package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/pmkol/tlesync/coremain"
	"github.com/pmkol/tlesync/mlog"
)

func main() {
	if err := coremain.Run(); err != nil {
		mlog.S().Error(err)
		_ = mlog.L().Sync()
		os.Exit(1)
	}
	_ = mlog.L().Sync()
}

func init() {
	// Keep zap's global logger in line with ours for libraries that use zap.L().
	zap.ReplaceGlobals(mlog.L())
}
