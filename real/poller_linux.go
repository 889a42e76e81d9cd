//go:build linux

package real

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const maxEvents = 128

// poller waits on an epoll set from its own goroutine and reports every
// readiness change of a registered descriptor to dispatch. An eventfd in the
// set wakes the goroutine for shutdown.
type poller struct {
	epfd     int
	wakefd   int
	dispatch func(fd int32)
	done     chan struct{}
	once     sync.Once
}

func newPoller(dispatch func(fd int32)) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}

	p := &poller{
		epfd:     epfd,
		wakefd:   wakefd,
		dispatch: dispatch,
		done:     make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// register adds fd edge-triggered for both directions.
func (p *poller) register(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *poller) unregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *poller) loop() {
	defer close(p.done)

	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function": "poller.loop",
				"error":    err.Error(),
			}).Error("epoll wait failed, stopping poller")
			return
		}

		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if fd == int32(p.wakefd) {
				return
			}
			p.dispatch(fd)
		}
	}
}

// close stops the poller goroutine and releases its descriptors. It waits
// for an in-progress dispatch to return.
func (p *poller) close() error {
	var err error
	p.once.Do(func() {
		var buf [8]byte
		binary.NativeEndian.PutUint64(buf[:], 1)
		if _, werr := unix.Write(p.wakefd, buf[:]); werr != nil {
			err = fmt.Errorf("eventfd write: %w", werr)
			return
		}
		<-p.done
		unix.Close(p.wakefd)
		err = unix.Close(p.epfd)
	})
	return err
}
