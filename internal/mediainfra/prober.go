package mediainfra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"go.senan.xyz/taglib"
)

// ErrNoDuration is returned when a file parses but reports no length.
var ErrNoDuration = errors.New("mediainfra: file reports no duration")

// TaglibProber reads the audio length of a file.
type TaglibProber struct{}

func NewTaglibProber() *TaglibProber {
	return &TaglibProber{}
}

// Probe returns the duration of path in whole seconds, rounded to the
// nearest second. A missing file yields an error matching fs.ErrNotExist.
func (p *TaglibProber) Probe(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}

	props, err := taglib.ReadProperties(path)
	if err != nil {
		return 0, fmt.Errorf("read properties of %s: %w", path, err)
	}
	if props.Length <= 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrNoDuration)
	}
	return int(math.Round(props.Length.Seconds())), nil
}
