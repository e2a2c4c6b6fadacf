package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"os"
	"strings"
	"time"

	"emotionserver/internal/logger"
	"emotionserver/internal/service/frame"
)

// UDPScheme prefixes camera devices served by UDPSource, e.g. "udp://:9000".
const UDPScheme = "udp://"

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

const (
	udpPacketSize   = 2048
	udpPollInterval = 500 * time.Millisecond

	// MaxUDPFrameBytes caps a frame under reassembly; larger ones are dropped.
	MaxUDPFrameBytes = 4 << 20
	// MaxUDPSenders caps the senders buffered at once.
	MaxUDPSenders = 64
)

type senderBuffer struct {
	bytes.Buffer
	lastSeen uint64
}

// UDPSource reassembles JPEG frames streamed by network cameras, one frame
// split across consecutive datagrams. Frames from several senders are
// buffered separately; the least recently heard sender is evicted when
// MaxUDPSenders is reached.
type UDPSource struct {
	conn      *net.UDPConn
	buffers   map[string]*senderBuffer
	packets   uint64
	packet    []byte
	maxPixels int
	logger    *logger.Logger
}

// IsUDPDevice reports whether device names a UDP listen address.
func IsUDPDevice(device string) bool {
	return strings.HasPrefix(device, UDPScheme)
}

// ListenUDP starts listening on addr ("host:port" or "udp://host:port").
func ListenUDP(addr string, logger *logger.Logger) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", strings.TrimPrefix(addr, UDPScheme))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", udpAddr, err)
	}

	logger.Info("UDP camera source listening on %s", conn.LocalAddr())
	return &UDPSource{
		conn:    conn,
		buffers:   make(map[string]*senderBuffer),
		packet:    make([]byte, udpPacketSize),
		maxPixels: frame.DefaultMaxPixels,
		logger:    logger,
	}, nil
}

// SetMaxFramePixels bounds the declared size of reassembled frames.
func (s *UDPSource) SetMaxFramePixels(n int) {
	s.maxPixels = n
}

// Addr returns the bound address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Read blocks until a complete JPEG frame arrives. Corrupt frames are logged
// and skipped.
func (s *UDPSource) Read(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.conn.SetReadDeadline(time.Now().Add(udpPollInterval))
		n, remote, err := s.conn.ReadFromUDP(s.packet)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read UDP packet: %w", err)
		}

		sender := remote.IP.String()
		data, ok := s.ingest(sender, s.packet[:n])
		if !ok {
			continue
		}
		img, _, err := frame.DecodeLimited(data, s.maxPixels)
		if err != nil {
			s.logger.Warning("Dropping frame from %s: %v", sender, err)
			continue
		}
		return img, nil
	}
}

// ingest appends a datagram to the sender's frame and returns the frame
// once its end marker arrives. Data outside a started frame is ignored.
func (s *UDPSource) ingest(sender string, data []byte) ([]byte, bool) {
	s.packets++
	start := bytes.HasPrefix(data, jpegHeader)

	buf, ok := s.buffers[sender]
	if !ok {
		if !start {
			return nil, false
		}
		if len(s.buffers) >= MaxUDPSenders {
			s.evictOldest()
		}
		buf = &senderBuffer{}
		s.buffers[sender] = buf
	}
	buf.lastSeen = s.packets

	if start {
		buf.Reset()
	} else if buf.Len() == 0 {
		return nil, false
	}
	if buf.Len()+len(data) > MaxUDPFrameBytes {
		s.logger.Warning("Dropping frame from %s: larger than %d bytes", sender, MaxUDPFrameBytes)
		buf.Reset()
		return nil, false
	}
	buf.Write(data)

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}
	out := bytes.Clone(buf.Bytes())
	buf.Reset()
	return out, true
}

func (s *UDPSource) evictOldest() {
	var oldest string
	var seen uint64
	for sender, buf := range s.buffers {
		if oldest == "" || buf.lastSeen < seen {
			oldest, seen = sender, buf.lastSeen
		}
	}
	delete(s.buffers, oldest)
	s.logger.Debug("Evicted UDP sender %s", oldest)
}

// Close stops listening.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
