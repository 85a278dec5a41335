package testutils

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// WaitSuccessfulDial waits until a TCP connection to address succeeds or ctx is done.
func WaitSuccessfulDial(ctx context.Context, address string) error {
	var d net.Dialer
	lastErr := errors.New("timed out dialing")
	for {
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
		if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			return errors.Wrapf(lastErr, "cannot dial %s", address)
		}
	}
}
