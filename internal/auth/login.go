package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/uibot/internal/verify"
)

// LoginPollInterval is how often WaitForLogin checks the page.
const LoginPollInterval = 2 * time.Second

// ErrLoginTimeout is returned when the user did not finish logging in.
var ErrLoginTimeout = errors.New("login timeout exceeded")

// WaitForLogin polls loggedIn until it reports true, giving a human time to
// complete an interactive login in a visible browser.
func WaitForLogin(ctx context.Context, loggedIn func(ctx context.Context) (bool, error), timeout time.Duration) error {
	return waitForLogin(ctx, loggedIn, timeout, LoginPollInterval)
}

func waitForLogin(ctx context.Context, loggedIn func(ctx context.Context) (bool, error), timeout, interval time.Duration) error {
	err := verify.Until(ctx, loggedIn, timeout, interval)
	var terr *verify.TimeoutError[bool]
	if errors.As(err, &terr) {
		return fmt.Errorf("%w after %s", ErrLoginTimeout, timeout)
	}
	return err
}
