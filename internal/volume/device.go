package volume

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"securewipe/internal/cancel"
	"securewipe/internal/progress"
	"securewipe/internal/wipe"
	"securewipe/internal/wipeerr"
)

// MetadataPhase is the progress phase name of the raw metadata overwrite.
const MetadataPhase = "Destroy Metadata"

// VolumeAPI is the raw volume capability the sanitizer needs. One
// implementation exists per platform.
type VolumeAPI interface {
	Lock() error
	Dismount() error
	Unlock() error
	// WriteRawChunk writes p at the current device offset.
	WriteRawChunk(p []byte) (int, error)
	Size() (int64, error)
	Close() error
}

// Opener opens the raw device behind a volume target.
type Opener func(target string) (VolumeAPI, error)

// lease brackets a locked and dismounted volume handle. release is
// idempotent and always closes the handle, even when unlock fails.
type lease struct {
	api    VolumeAPI
	locked bool
	done   bool
}

func acquire(open Opener, target string) (*lease, error) {
	api, err := open(target)
	if err != nil {
		return nil, wipeerr.Mark(err, wipeerr.ErrAccessDenied, "open volume %s", target)
	}
	l := &lease{api: api}
	if err := api.Lock(); err != nil {
		_ = l.release()
		return nil, wipeerr.Mark(err, wipeerr.ErrAccessDenied, "lock volume %s", target)
	}
	l.locked = true
	if err := api.Dismount(); err != nil {
		err = wipeerr.Mark(err, wipeerr.ErrAccessDenied, "dismount volume %s", target)
		if rerr := l.release(); rerr != nil {
			err = multierror.Append(err, rerr)
		}
		return nil, err
	}
	return l, nil
}

func (l *lease) release() error {
	if l == nil || l.done {
		return nil
	}
	l.done = true
	var result *multierror.Error
	if l.locked {
		if err := l.api.Unlock(); err != nil {
			result = multierror.Append(result, wipeerr.Mark(err, wipeerr.ErrIOFailure, "unlock volume"))
		}
	}
	if err := l.api.Close(); err != nil {
		result = multierror.Append(result, wipeerr.Mark(err, wipeerr.ErrIOFailure, "close volume handle"))
	}
	return result.ErrorOrNil()
}

// DestroyMetadata overwrites the first limit bytes of the volume (or the whole
// volume if smaller) with random data, checking the token before every chunk.
func DestroyMetadata(api VolumeAPI, limit int64, chunkSize int, token *cancel.Token, rep *progress.Reporter) (uint64, error) {
	size, err := api.Size()
	if err != nil {
		return 0, wipeerr.Mark(err, wipeerr.ErrIOFailure, "query volume size")
	}
	if size > 0 && size < limit {
		limit = size
	}

	rep.AddTotal(uint64(limit))
	rep.Begin(progress.Phase{Name: MetadataPhase, MinSample: time.Millisecond})
	buf := wipe.GetBuffer(chunkSize)
	defer wipe.PutBuffer(buf)

	var written uint64
	for int64(written) < limit {
		if token.Cancelled() {
			return written, wipeerr.Cancelled("metadata destroy")
		}
		n := int64(chunkSize)
		if left := limit - int64(written); left < n {
			n = left
		}
		chunk := buf[:n]
		if err := wipe.FillRandom(chunk); err != nil {
			return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "generate random data")
		}
		start := time.Now()
		w, err := api.WriteRawChunk(chunk)
		if w > 0 {
			written += uint64(w)
			rep.Advance(uint64(w), time.Since(start))
		}
		if err != nil {
			return written, wipeerr.Mark(err, wipeerr.ErrIOFailure, "raw write at offset %d", written)
		}
		if w == 0 {
			return written, wipeerr.New(wipeerr.ErrIOFailure, "raw write made no progress at offset %d", written)
		}
	}
	rep.Flush()
	return written, nil
}
