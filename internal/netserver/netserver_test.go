package netserver

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/server"
)

func startServer(t *testing.T, section config.ServerSection) *Server {
	t.Helper()
	engine := server.New(config.Default())
	t.Cleanup(engine.Close)

	section.Enabled = true
	if section.Addr == "" {
		section.Addr = "127.0.0.1:0"
	}
	front := New(section, engine, nil)
	if err := front.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = front.Shutdown(ctx)
	})
	return front
}

func TestServeOverTCP(t *testing.T) {
	front := startServer(t, config.ServerSection{})

	conn, err := net.Dial("tcp", front.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatal(err)
	}
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "+PONG\r\n" {
		t.Fatalf("reply = %q", line)
	}

	if _, err := conn.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")); err != nil {
		t.Fatal(err)
	}
	line, _ = br.ReadString('\n')
	if line != "+OK\r\n" {
		t.Fatalf("SET reply = %q", line)
	}
}

func TestTwoConnectionsShareState(t *testing.T) {
	front := startServer(t, config.ServerSection{})

	c1, err := net.Dial("tcp", front.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := net.Dial("tcp", front.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	br1 := bufio.NewReader(c1)
	br2 := bufio.NewReader(c2)

	c1.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
	if line, _ := br1.ReadString('\n'); line != "+OK\r\n" {
		t.Fatalf("SET = %q", line)
	}

	c2.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
	if line, _ := br2.ReadString('\n'); line != "$1\r\n" {
		t.Fatalf("GET header = %q", line)
	}
	if line, _ := br2.ReadString('\n'); line != "v\r\n" {
		t.Fatalf("GET body = %q", line)
	}
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	front := startServer(t, config.ServerSection{
		IdleTimeout: 100 * time.Millisecond,
	})

	conn, err := net.Dial("tcp", front.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the idle connection to be closed")
	}
}
