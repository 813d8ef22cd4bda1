package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示 clamd 判定文件含恶意内容。
var ErrInfected = errors.New("malicious file detected")

// VirusScanner checks an upload stream before it is forwarded to the catalog.
type VirusScanner interface {
	Scan(r io.Reader) error
}

type clamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner returns nil when addr is empty, which disables scanning.
func NewClamdScanner(addr string) VirusScanner {
	if addr == "" {
		return nil
	}
	return &clamdScanner{client: clamd.NewClamd(addr)}
}

func (s *clamdScanner) Scan(r io.Reader) error {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan file: %w", err)
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return fmt.Errorf("%w: %s", ErrInfected, result.Description)
		}
	}
	return nil
}
