package ipc

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/logging"
)

const (
	eventBufferSize = 64
	maxMessageSize  = 1 << 20
	writeTimeout    = 10 * time.Second
)

// SocketPath returns the socket address for a channel id inside dir
func SocketPath(dir, channelID string) string {
	return filepath.Join(dir, "elevlink-"+channelID+".sock")
}

// Server is the listening (orchestrator) end of a channel
type Server struct {
	logger   zerolog.Logger
	address  string
	listener net.Listener
	events   chan Event
	done     chan struct{}

	mu     sync.Mutex
	conns  map[ConnID]*serverConn
	nextID ConnID

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type serverConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// Listen opens the channel named channelID in dir in listening mode
func Listen(dir, channelID string) (*Server, error) {
	if channelID == "" {
		return nil, errors.New(errors.ErrInvalidInput, "channel id is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, errors.ErrChannel, "failed to create socket directory %s", dir)
	}

	address := SocketPath(dir, channelID)
	// A socket left behind by a crashed session would make bind fail
	_ = os.Remove(address)

	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrChannel, "failed to bind channel %s", address)
	}

	s := &Server{
		logger:   logging.GetLogger("ipc.server").With().Str("channel", channelID).Logger(),
		address:  address,
		listener: listener,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
		conns:    make(map[ConnID]*serverConn),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Debug().Str("address", address).Msg("Channel listening")
	return s, nil
}

// Address is what a worker dials to reach this server
func (s *Server) Address() string {
	return s.address
}

// Events is the stream of everything received from workers. It is closed
// once the server has been closed and all connections have wound down.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Send writes msg to the connection identified by id
func (s *Server) Send(id ConnID, msg Message) error {
	s.mu.Lock()
	sc, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrChannel, "connection %d is not open", id)
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := sc.conn.Write(data); err != nil {
		return errors.Wrapf(err, errors.ErrChannel, "failed to send %s", msg.Type)
	}

	s.logger.Trace().Str("type", string(msg.Type)).Uint64("conn", uint64(id)).Msg("Sent message")
	return nil
}

// Close stops listening, drops every connection and closes the event stream.
// It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()

		s.mu.Lock()
		for _, sc := range s.conns {
			_ = sc.conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		close(s.events)

		if rmErr := os.Remove(s.address); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Debug().Err(rmErr).Msg("Failed to remove socket file")
		}
		s.logger.Debug().Msg("Channel closed")
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error().Err(err).Msg("Accept failed, channel no longer listening")
			}
			return
		}

		s.mu.Lock()
		select {
		case <-s.done:
			// raced with Close
			s.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		s.nextID++
		id := s.nextID
		s.conns[id] = &serverConn{conn: conn}
		s.mu.Unlock()

		s.logger.Debug().Uint64("conn", uint64(id)).Msg("Worker connected")

		s.wg.Add(1)
		go s.serve(id, conn)
	}
}

func (s *Server) serve(id ConnID, conn net.Conn) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxMessageSize)

	for scanner.Scan() {
		msg, err := Decode(scanner.Bytes())
		if err != nil {
			s.logger.Warn().Err(err).Uint64("conn", uint64(id)).Msg("Dropping malformed message")
			continue
		}
		kind, ok := eventKindFor(msg.Type)
		if !ok {
			s.logger.Warn().Str("type", string(msg.Type)).Msg("Dropping unexpected message")
			continue
		}
		s.emit(Event{Kind: kind, Conn: id, Message: msg})
	}

	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	_ = conn.Close()

	s.logger.Debug().Uint64("conn", uint64(id)).Msg("Worker disconnected")
	s.emit(Event{Kind: EventDisconnected, Conn: id, Err: scanner.Err()})
}

func (s *Server) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
