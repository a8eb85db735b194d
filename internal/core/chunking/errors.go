package chunking

import (
	"errors"
	"fmt"
)

var ErrUnknownStrategy = errors.New("unknown chunking strategy")

func errVectorCount(want, got int) error {
	return fmt.Errorf("embedder returned %d vectors for %d texts", got, want)
}
