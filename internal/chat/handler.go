package chat

import (
	"fmt"
	"log"
	"strings"
	"time"

	"lanhub/internal/constants"
	"lanhub/internal/eventlog"
	"lanhub/internal/session"
)

// dispatch routes one command line. Commands are processed strictly in
// arrival order for a given connection.
func (s *Server) dispatch(username string, c *client, msg string) {
	ts := time.Now().Format(constants.TimeFormatShort)

	switch {
	case strings.HasPrefix(msg, "SET_STATUS:"):
		s.handleSetStatus(username, msg)

	case strings.HasPrefix(msg, "PM:"):
		s.handlePrivateMessage(username, c, msg, ts)

	case msg == "REQUEST_TO_PRESENT":
		s.handlePresentRequest(username, c)

	case strings.HasPrefix(msg, "PRESENT_RESPONSE:"):
		s.handlePresentResponse(username, c, msg)

	case msg == "STOP_SHARING":
		s.handleStopSharing(username)

	default:
		// Everything else is a public chat message.
		s.metrics.ChatMessages.Inc()
		s.broadcast(fmt.Sprintf("%s %s: %s", ts, username, msg), username)
	}
}

func (s *Server) handleSetStatus(username, msg string) {
	status := session.ParseStatus(strings.TrimPrefix(msg, "SET_STATUS:"))
	if err := s.registry.SetStatus(username, status); err != nil {
		log.Printf("⚠️  Status update from unregistered user %q ignored", username)
		return
	}

	log.Printf("💬 %s set status to %s", username, status)
	s.events.Log(eventlog.TypeStatusChange, username, "", string(status))
	s.broadcast(fmt.Sprintf("STATUS_UPDATE:%s=%s", username, status), username)
}

func (s *Server) handlePrivateMessage(username string, c *client, msg, ts string) {
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) != 3 {
		c.Send(ts + " SYSTEM:Error processing PM.")
		return
	}
	target, content := parts[1], parts[2]

	sender, online := s.registry.Sender(target)
	if !online {
		c.Send(fmt.Sprintf("%s SYSTEM:User '%s' not found or offline.", ts, target))
		return
	}

	// Delivery is not atomic with the target's disconnect; a failed send
	// is logged and dropped, never retried.
	if err := sender.Send(fmt.Sprintf("%s PM_FROM:%s:%s", ts, username, content)); err != nil {
		log.Printf("⚠️  PM delivery to %s failed: %v", target, err)
	}
	c.Send(fmt.Sprintf("%s PM_TO:%s:%s", ts, target, content))
	s.metrics.PrivateMessages.Inc()
}

func (s *Server) handlePresentRequest(username string, c *client) {
	log.Printf("🖥  %q is requesting to present", username)

	granted, holder, holderSender := s.registry.RequestPresenter(username)
	if granted {
		log.Printf("🖥  Granting present request for %q", username)
		s.events.Log(eventlog.TypePresenterGranted, username, c.id, "")
		s.metrics.PresenterGrants.Inc()
		c.Send("OK_TO_PRESENT")
		s.broadcast("SCREEN_START:"+username, username)
		return
	}
	if holderSender == nil {
		return
	}

	// Someone is presenting; ask them for permission. No timeout is
	// enforced, so a silent presenter leaves the requester waiting.
	log.Printf("🖥  Asking current presenter %q for approval", holder)
	if err := holderSender.Send("PRESENT_REQUEST_FROM:" + username); err != nil {
		log.Printf("⚠️  Could not reach presenter %q: %v", holder, err)
	}
}

func (s *Server) handlePresentResponse(username string, c *client, msg string) {
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) != 3 {
		log.Printf("⚠️  Malformed PRESENT_RESPONSE from %q: %q", username, msg)
		return
	}
	answer, requester := parts[1], parts[2]
	log.Printf("🖥  Presenter %q responded %q to %q", username, answer, requester)

	if answer != "Yes" {
		if !s.registry.IsPresenter(username) {
			log.Printf("⚠️  %q responded but is no longer presenter. Ignoring.", username)
			return
		}
		if target, online := s.registry.Sender(requester); online {
			target.Send("PRESENT_REQUEST_DENIED")
		}
		s.events.Log(eventlog.TypePresenterDenied, requester, "", "denied by "+username)
		s.metrics.PresenterDenies.Inc()
		return
	}

	// The transfer only succeeds while the responder still holds the slot
	// and the requester is still registered; stale responses are ignored.
	target, ok := s.registry.TransferPresenter(username, requester)
	if !ok {
		log.Printf("⚠️  Ignoring stale PRESENT_RESPONSE from %q for %q", username, requester)
		return
	}

	log.Printf("🖥  Transferring presentation from %q to %q", username, requester)
	s.events.Log(eventlog.TypePresenterGranted, requester, "", "handoff from "+username)
	s.metrics.PresenterGrants.Inc()
	target.Send("OK_TO_PRESENT")
	c.Send("SCREEN_STOP_REQUESTED")
	s.broadcast("SCREEN_START:"+requester, requester)
}

func (s *Server) handleStopSharing(username string) {
	if !s.registry.ReleasePresenter(username) {
		log.Printf("⚠️  %q sent STOP_SHARING but wasn't the presenter", username)
		return
	}

	log.Printf("🖥  %q stopped presenting", username)
	s.events.Log(eventlog.TypePresenterStopped, username, "", "stopped")
	s.broadcast("SCREEN_STOP", "")
}
