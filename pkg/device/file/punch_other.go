//go:build unix && !linux

package file

import (
	"errors"
	"os"
)

func punchHole(*os.File, int64, int64) error {
	return errors.ErrUnsupported
}
