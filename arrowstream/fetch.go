package arrowstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

const (
	arrowStreamContentType = "application/vnd.apache.arrow.stream"
	defaultChunkSize       = 64 << 10
)

// Process-wide default client, built once. Transfer-global setup belongs
// to the byte source; the decoder core stays agnostic to it.
var (
	defaultClientOnce sync.Once
	defaultClient     *http.Client
)

func defaultHTTPClient() *http.Client {
	defaultClientOnce.Do(func() {
		defaultClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          16,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	})
	return defaultClient
}

// FetchOptions configures a Fetch or FetchStream transfer. The zero value
// is usable: shared default client, no extra headers, no logging, no hook.
type FetchOptions struct {
	// Client overrides the shared default http.Client.
	Client *http.Client
	// Header adds request headers (e.g. authorization). Accept and
	// Accept-Encoding are set by Fetch and may be overridden here.
	Header http.Header
	// Logger receives per-chunk debug logging. Nil disables logging.
	Logger *zerolog.Logger
	// Hook is called around the transfer with final decode statistics.
	Hook StreamHook
	// ChunkSize is the read buffer size. Defaults to 64 KiB.
	ChunkSize int
	// QueueDepth bounds the batch queue of FetchStream. Defaults to 4.
	QueueDepth int
}

// Fetch issues a GET for url and streams the response body into dec,
// chunk by chunk, until the stream terminates, the body is exhausted, or
// either layer fails. Responses with Content-Encoding zstd or gzip are
// decompressed before decoding.
//
// The transport and decode layers are kept strictly separate: a decode
// error is always the primary returned error even when the transport
// also failed mid-read (the transport failure is then joined so both
// remain observable), and a transport failure with clean decode state
// surfaces as SourceError. A body that ends cleanly closes the decoder,
// so a truncated stream is reported as CorruptStream.
func Fetch(ctx context.Context, url string, dec *Decoder, opts *FetchOptions) error {
	if opts == nil {
		opts = &FetchOptions{}
	}
	client := opts.Client
	if client == nil {
		client = defaultHTTPClient()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sourceError(err)
	}
	req.Header.Set("Accept", arrowStreamContentType)
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return sourceError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sourcef("unexpected HTTP status %s", resp.Status)
	}

	info := StreamInfo{
		URL:             url,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}
	logger.Debug().
		Str("url", url).
		Str("content_type", info.ContentType).
		Str("content_encoding", info.ContentEncoding).
		Msg("stream transfer started")

	var token HookToken
	if opts.Hook != nil {
		ctx, token = opts.Hook.OnStreamStart(ctx, info)
	}

	err = consumeBody(resp, dec, opts.ChunkSize, logger)

	if opts.Hook != nil {
		stats := dec.Stats()
		opts.Hook.OnStreamEnd(ctx, token, info, &stats, err)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("stream transfer failed")
	} else {
		stats := dec.Stats()
		logger.Debug().
			Int64("bytes", stats.BytesConsumed).
			Int64("batches", stats.BatchesDecoded).
			Int64("rows", stats.RowsDecoded).
			Msg("stream transfer complete")
	}
	return err
}

// consumeBody runs the read/consume loop over the (possibly decompressed)
// response body.
func consumeBody(resp *http.Response, dec *Decoder, chunkSize int, logger zerolog.Logger) error {
	body, closeBody, err := decodeTransferEncoding(resp)
	if err != nil {
		return err
	}
	defer closeBody()

	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	buf := make([]byte, chunkSize)

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			units, derr := dec.Consume(buf[:n])
			logger.Trace().Int("bytes", n).Int("units", units).Msg("consumed chunk")
			if derr != nil {
				if rerr != nil && rerr != io.EOF {
					// Both layers fired; the decode error leads, the
					// transport error stays observable.
					return errors.Join(derr, sourceError(rerr))
				}
				return derr
			}
			if dec.Done() {
				// End-of-stream decoded; anything left in the body is
				// not part of the stream, stop reading.
				return nil
			}
		}
		switch {
		case rerr == io.EOF:
			return dec.Close()
		case rerr != nil:
			return sourceError(rerr)
		}
	}
}

// decodeTransferEncoding wraps the response body for the negotiated
// content encoding. Unknown encodings are a source failure, not decoder
// corruption.
func decodeTransferEncoding(resp *http.Response) (io.Reader, func(), error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "", "identity":
		return resp.Body, func() {}, nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, nil, sourceError(err)
		}
		return gz, func() { gz.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, nil, sourceError(err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, sourcef("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
