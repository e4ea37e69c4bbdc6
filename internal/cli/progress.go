package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/quizchain/client-sdk-go/types"
)

// isTerminal w 是否为终端
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newPollProgress 轮询进度条（非终端时不输出）
//
// 返回 OnPoll 回调和结束函数，结束函数可重复调用。
func newPollProgress(w io.Writer, maxAttempts int) (func(int, types.TxStatus), func()) {
	if !isTerminal(w) {
		return nil, func() {}
	}

	bar := progressbar.NewOptions(maxAttempts,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("waiting for ledger"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	onPoll := func(attempt int, status types.TxStatus) {
		bar.Describe("status " + string(status))
		_ = bar.Set(attempt)
	}
	return onPoll, func() { _ = bar.Finish() }
}
