package scheduler

import "github.com/mdsuper/mdsuper/internal/common"

func newTestLogger() *common.Logger {
	return common.NewSilentLogger()
}
