//go:build !plan9

package plumber

import (
	"io"

	"github.com/fhs/9fans-go/plan9"
	"github.com/fhs/9fans-go/plumb"
)

func openSend() (io.WriteCloser, error) {
	return plumb.Open("send", plan9.OWRITE)
}
