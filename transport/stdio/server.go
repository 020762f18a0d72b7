package stdio

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/dispatch"
	"github.com/mcpref/mcpserver/jsonrpc"
	"github.com/mcpref/mcpserver/session"
)

const defaultMaxLineBytes = 1024 * 1024

// Options configure the stdio server.
type Options struct {
	Input        io.Reader
	Output       io.Writer
	MaxLineBytes int
	Logger       zerolog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithInput overrides the input stream, defaulting to os.Stdin.
func WithInput(input io.Reader) Option {
	return func(o *Options) { o.Input = input }
}

// WithOutput overrides the output stream, defaulting to os.Stdout.
func WithOutput(output io.Writer) Option {
	return func(o *Options) { o.Output = output }
}

// WithMaxLineBytes caps the accepted line length.
func WithMaxLineBytes(limit int) Option {
	return func(o *Options) { o.MaxLineBytes = limit }
}

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Server reads newline-delimited JSON-RPC messages from its input and writes
// responses back one per line. A single session spans the whole connection.
type Server struct {
	options    Options
	dispatcher *dispatch.Dispatcher
	session    *session.Session
	writeMux   sync.Mutex
}

// New creates a stdio server bound to the dispatcher.
func New(dispatcher *dispatch.Dispatcher, options ...Option) *Server {
	opts := Options{
		Input:        os.Stdin,
		Output:       os.Stdout,
		MaxLineBytes: defaultMaxLineBytes,
		Logger:       zerolog.Nop(),
	}
	for _, option := range options {
		option(&opts)
	}
	return &Server{
		options:    opts,
		dispatcher: dispatcher,
		session:    session.New(),
	}
}

// Session returns the server's single session.
func (s *Server) Session() *session.Session {
	return s.session
}

// ListenAndServe consumes messages until EOF or context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lines := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.options.Input)
		scanner.Buffer(make([]byte, 0, 64*1024), s.options.MaxLineBytes)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if len(line) == 0 {
				continue
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	message, parseFailure := jsonrpc.ParseMessage(line)
	if parseFailure != nil {
		// client replies to server-initiated requests are consumed silently
		if jsonrpc.DetectType(line) == jsonrpc.MessageTypeResponse {
			if _, err := jsonrpc.ParseResponse(line); err == nil {
				return
			}
		}
		s.writeResponse(parseFailure)
		return
	}
	response := s.dispatcher.HandleMessage(ctx, s.session, message)
	if response != nil {
		s.writeResponse(response)
	}
}

func (s *Server) writeResponse(response *jsonrpc.Response) {
	data, err := json.Marshal(response)
	if err != nil {
		s.options.Logger.Error().Err(err).Msg("failed to serialize response")
		return
	}
	s.writeMux.Lock()
	defer s.writeMux.Unlock()
	if _, err := s.options.Output.Write(append(data, '\n')); err != nil {
		s.options.Logger.Warn().Err(err).Msg("failed to write response")
	}
}
