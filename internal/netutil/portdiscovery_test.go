package netutil

import (
	"net"
	"strconv"
	"testing"
)

func TestFindAvailablePort_PreferredFree(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	preferred := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	port, err := FindAvailablePort(preferred, 5)
	if err != nil {
		t.Fatalf("FindAvailablePort() error: %v", err)
	}
	if port != preferred {
		t.Errorf("FindAvailablePort() = %d, want preferred %d when free", port, preferred)
	}
}

func TestFindAvailablePort_PreferredTaken_FallsBack(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	taken := ln.Addr().(*net.TCPAddr).Port

	port, err := FindAvailablePort(taken, 10)
	if err != nil {
		t.Fatalf("FindAvailablePort() error: %v", err)
	}
	if port == taken {
		t.Error("FindAvailablePort() returned the taken port")
	}
}

func TestFindAvailablePort_ExhaustsAttempts(t *testing.T) {
	listeners := make([]net.Listener, 0, 3)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	base := ln.Addr().(*net.TCPAddr).Port
	listeners = append(listeners, ln)

	for i := 1; i < 3; i++ {
		l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(base+i)))
		if err != nil {
			t.Skip("could not reserve contiguous ports for this test")
		}
		listeners = append(listeners, l)
	}

	_, err = FindAvailablePort(base, 3)
	if err == nil {
		t.Error("FindAvailablePort() with all candidate ports taken: want error, got nil")
	}
}

func TestFindServicePort_Succeeds(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	preferred := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	port, err := FindServicePort("broker", preferred, nil)
	if err != nil {
		t.Fatalf("FindServicePort() error: %v", err)
	}
	if port == 0 {
		t.Error("FindServicePort() returned zero port")
	}
}
