// Package separation wraps the actual stem separation work, which is
// delegated to either a local command line tool or a remote HTTP
// service. Both strategies implement the same Backend contract.
package separation

import (
	"context"
	"time"

	"github.com/spf13/viper"
)

// SourceAudio is the input track handed to a backend.
type SourceAudio struct {
	Name string
	Data []byte
}

// Stem is a single separated track produced by a backend.
type Stem struct {
	Type     string
	Filename string
	Data     []byte
}

// Backend runs one separation end to end. The report callback is called
// opportunistically with a 0-100 progress value and must tolerate being
// called from the backend's goroutine. A backend either returns at
// least one stem or an error.
type Backend interface {
	Separate(ctx context.Context, src SourceAudio, report func(progress int)) ([]Stem, error)
}

// New builds the backend selected by separation.mode. The choice is
// made once at construction, callers never branch on the mode again.
func New() Backend {
	if viper.GetString("separation.mode") == "local" {
		return NewLocal()
	}

	return NewRemote()
}

// NewLocal builds the subprocess strategy from config.
func NewLocal() *LocalBackend {
	return &LocalBackend{
		Binary:  viper.GetString("separation.binary"),
		Model:   viper.GetString("separation.model"),
		Timeout: viper.GetDuration("separation.local_timeout"),
	}
}

// NewRemote builds the HTTP strategy from config.
func NewRemote() *RemoteBackend {
	return &RemoteBackend{
		api:          newRemoteAPI(viper.GetString("separation.base_url"), viper.GetString("separation.api_key")),
		sim:          newSimulator(),
		Model:        viper.GetString("separation.model"),
		Stems:        viper.GetStringSlice("separation.stems"),
		PollInterval: viper.GetDuration("separation.poll_interval"),
		PollAttempts: viper.GetInt("separation.poll_attempts"),
		RetryBackoff: 5 * time.Second,
	}
}
