// go-sft
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sft.
//
// go-sft is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sft; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package sft

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-sft/internal/frame"
	"github.com/ZaparooProject/go-sft/internal/transport"
)

var errCollision = errors.New("probe seed collision")

// Status is the result class of a negotiation
type Status int

// Negotiation statuses
const (
	// StatusNegotiated means both ends verified the link at the agreed rate
	StatusNegotiated Status = iota
	// StatusDegraded means a phase ran out of time or retries; the link is
	// back at its original rate and the caller should fall back to manual
	// configuration
	StatusDegraded
	// StatusRejected means the responder declined the proposed parameters
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNegotiated:
		return "negotiated"
	case StatusDegraded:
		return "degraded"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Offer describes what an initiator intends to transfer
type Offer struct {
	// RootPath is the directory the receiver should recreate, protocol v2 only
	RootPath  string
	TotalSize uint64
	FileCount uint32
	Mode      TransferMode
}

// AcceptFunc lets a responder refuse a proposal, for example when it cannot
// write to the proposed root path
type AcceptFunc func(CapabilityNego) error

// Params are the values both ends agreed on
type Params struct {
	RootPath     string
	TotalSize    uint64
	BaudRate     int
	ChunkSize    int
	SessionID    uint32
	PeerDeviceID uint32
	FileCount    uint32
	Mode         TransferMode
	Version      uint8
}

// Outcome is the result of a negotiation
type Outcome struct {
	// Reason explains a degraded or rejected outcome
	Reason error
	Phase  Phase
	Params Params
	Status Status
}

// Err returns nil for a negotiated outcome and a *DegradedError otherwise
func (o Outcome) Err() error {
	if o.Status == StatusNegotiated {
		return nil
	}
	return &DegradedError{Phase: o.Phase, Err: o.Reason}
}

// step tells await what to do after a message has been handled
type step int

const (
	stepWait step = iota
	stepRestart
	stepDone
)

// Negotiator runs discovery, capability negotiation, the synchronized baud
// rate switch and connection verification over a Link. Initiate runs the
// initiator side, Respond the responder side.
type Negotiator struct {
	link     *Link
	config   *Config
	observer Observer
	rng      *rand.Rand
	logger   zerolog.Logger
	deviceID uint32
}

// NewNegotiator creates a negotiator for link
func NewNegotiator(link *Link, opts ...Option) (*Negotiator, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: negotiator needs a link", ErrInvalidParameter)
	}
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newNegotiator(link, config), nil
}

func newNegotiator(link *Link, config *Config) *Negotiator {
	n := &Negotiator{
		link:     link,
		config:   config,
		observer: config.Observer,
		rng:      config.newRand(),
		deviceID: config.Negotiation.DeviceID,
	}
	if n.deviceID == 0 {
		n.deviceID = randomID(n.rng)
	}
	n.logger = config.Logger.With().Hex("device_id", uint32Bytes(n.deviceID)).Logger()
	return n
}

// DeviceID returns this end's identity
func (n *Negotiator) DeviceID() uint32 {
	return n.deviceID
}

// Initiate probes for a peer, proposes parameters for offer and switches
// both ends to the agreed rate. Degraded and rejected outcomes are reported
// through Outcome with a nil error; the error is reserved for cancellation
// and transport failures. Unless the outcome is negotiated, the transport is
// left at the rate it had on entry.
func (n *Negotiator) Initiate(ctx context.Context, offer Offer) (outcome Outcome, err error) {
	cfg := n.config.Negotiation
	original := n.link.Transport().BaudRate()
	defer func() {
		if err != nil || outcome.Status != StatusNegotiated {
			err = errors.Join(err, n.revert(original))
		}
	}()

	if err := n.enterDiscoveryRate(); err != nil {
		return Outcome{}, err
	}

	// Discovery
	peer, err := n.discover(ctx)
	if err != nil {
		return n.degrade(ctx, PhaseDiscovery, err)
	}
	version := min(cfg.ProtocolVersion, peer.Version)
	n.logger.Info().Hex("peer", uint32Bytes(peer.DeviceID)).Uint8("version", version).
		Ints("peer_rates", toInts(peer.BaudRates)).Msg("peer discovered")
	n.observer.emit(Event{Type: EventPeerDiscovered, Phase: PhaseDiscovery, Message: fmt.Sprintf("%08X", peer.DeviceID)})

	// Capability
	baud, ok := highestCommon(cfg.BaudRates, toInts(peer.BaudRates))
	if !ok {
		return n.degrade(ctx, PhaseCapability, fmt.Errorf("%w: peer offers %v", ErrNoCommonBaudRate, peer.BaudRates))
	}
	params := Params{
		SessionID:    randomID(n.rng),
		BaudRate:     baud,
		ChunkSize:    NegotiateChunkSize(ChunkSizeForBaud(baud), n.config.Transfer.MaxChunkSize),
		Mode:         offer.Mode,
		FileCount:    offer.FileCount,
		TotalSize:    offer.TotalSize,
		PeerDeviceID: peer.DeviceID,
		Version:      version,
	}
	if version >= ProtocolVersion2 {
		params.RootPath = offer.RootPath
	}

	ack, err := n.proposeCapability(ctx, params)
	if err != nil {
		return n.degrade(ctx, PhaseCapability, err)
	}
	if !ack.Accepted {
		n.logger.Warn().Uint32("session_id", params.SessionID).Msg("capability rejected by peer")
		n.observer.emit(Event{Type: EventCapabilityRejected, Phase: PhaseCapability, SessionID: params.SessionID})
		return Outcome{
			Status: StatusRejected,
			Phase:  PhaseCapability,
			Params: params,
			Reason: ErrNegotiationRejected,
		}, nil
	}
	if ack.ChunkSize != 0 {
		params.ChunkSize = NegotiateChunkSize(params.ChunkSize, int(ack.ChunkSize))
	}
	n.logger.Info().Uint32("session_id", params.SessionID).Int("baud", params.BaudRate).
		Int("chunk", params.ChunkSize).Msg("capability agreed")
	n.observer.emit(Event{
		Type: EventCapabilityAgreed, Phase: PhaseCapability, SessionID: params.SessionID, BaudRate: params.BaudRate,
	})

	// Switch
	if err := n.requestSwitch(ctx, params); err != nil {
		return n.degrade(ctx, PhaseSwitch, err)
	}

	// Verification
	if err := n.verifyInitiator(ctx, params.SessionID); err != nil {
		return n.degrade(ctx, PhaseVerification, err)
	}
	n.logger.Info().Uint32("session_id", params.SessionID).Int("baud", params.BaudRate).Msg("connection verified")
	n.observer.emit(Event{
		Type: EventConnectionVerified, Phase: PhaseVerification, SessionID: params.SessionID, BaudRate: params.BaudRate,
	})
	return Outcome{Status: StatusNegotiated, Phase: PhaseVerification, Params: params}, nil
}

// Respond waits for an initiator's probe, validates its proposal with accept
// (nil accepts everything feasible) and follows its baud rate switch. The
// outcome and error follow the same rules as Initiate.
func (n *Negotiator) Respond(ctx context.Context, accept AcceptFunc) (outcome Outcome, err error) {
	cfg := n.config.Negotiation
	original := n.link.Transport().BaudRate()
	defer func() {
		if err != nil || outcome.Status != StatusNegotiated {
			err = errors.Join(err, n.revert(original))
		}
	}()

	if err := n.enterDiscoveryRate(); err != nil {
		return Outcome{}, err
	}

	// Discovery
	probe, err := n.listen(ctx)
	if err != nil {
		return n.degrade(ctx, PhaseDiscovery, err)
	}
	params := Params{
		PeerDeviceID: probe.DeviceID,
		Version:      min(cfg.ProtocolVersion, probe.Version),
	}
	n.observer.emit(Event{Type: EventPeerDiscovered, Phase: PhaseDiscovery, Message: fmt.Sprintf("%08X", probe.DeviceID)})

	// Capability
	nego, err := n.awaitCapability(ctx)
	if err != nil {
		return n.degrade(ctx, PhaseCapability, err)
	}
	params.SessionID = nego.SessionID
	params.BaudRate = int(nego.BaudRate)
	params.Mode = nego.Mode
	params.FileCount = nego.FileCount
	params.TotalSize = nego.TotalSize
	params.RootPath = nego.RootPath

	if reason := n.validateCapability(nego, accept); reason != nil {
		n.logger.Warn().Err(reason).Uint32("session_id", nego.SessionID).Msg("rejecting capability")
		if err := n.link.Send(CapabilityAck{SessionID: nego.SessionID}); err != nil {
			return Outcome{}, err
		}
		n.observer.emit(Event{
			Type: EventCapabilityRejected, Phase: PhaseCapability, SessionID: nego.SessionID, Err: reason,
		})
		return Outcome{
			Status: StatusRejected,
			Phase:  PhaseCapability,
			Params: params,
			Reason: fmt.Errorf("%w: %w", ErrNegotiationRejected, reason),
		}, nil
	}

	params.ChunkSize = NegotiateChunkSize(int(nego.ChunkSize), n.config.Transfer.MaxChunkSize)
	ack := CapabilityAck{SessionID: nego.SessionID, Accepted: true, ChunkSize: uint16(params.ChunkSize)}
	if err := n.link.Send(ack); err != nil {
		return Outcome{}, err
	}
	n.logger.Info().Uint32("session_id", params.SessionID).Int("baud", params.BaudRate).
		Int("chunk", params.ChunkSize).Msg("capability agreed")
	n.observer.emit(Event{
		Type: EventCapabilityAgreed, Phase: PhaseCapability, SessionID: params.SessionID, BaudRate: params.BaudRate,
	})

	// Switch
	if err := n.followSwitch(ctx, nego, ack); err != nil {
		return n.degrade(ctx, PhaseSwitch, err)
	}

	// Verification
	if err := n.verifyResponder(ctx, params.SessionID); err != nil {
		return n.degrade(ctx, PhaseVerification, err)
	}
	n.logger.Info().Uint32("session_id", params.SessionID).Int("baud", params.BaudRate).Msg("connection verified")
	n.observer.emit(Event{
		Type: EventConnectionVerified, Phase: PhaseVerification, SessionID: params.SessionID, BaudRate: params.BaudRate,
	})
	return Outcome{Status: StatusNegotiated, Phase: PhaseVerification, Params: params}, nil
}

// discover probes until a response echoes the probe's seed. A probe carrying
// our own outstanding seed means another initiator shares the medium; that
// attempt backs off and re-probes with a fresh seed.
func (n *Negotiator) discover(ctx context.Context) (ProbeResponse, error) {
	cfg := n.config.Negotiation
	policy := cfg.Discovery

	config := retryEngineConfig(policy, "discovery", n.rng, n.onRetry(PhaseDiscovery, frame.CmdProbeRequest))
	return transport.WithRetry(ctx, config, func(attempt int) (ProbeResponse, bool, error) {
		seed := randomID(n.rng)
		n.link.Discard()
		if err := n.link.Send(ProbeRequest{DeviceID: n.deviceID, Version: cfg.ProtocolVersion, Seed: seed}); err != nil {
			return ProbeResponse{}, IsRetryable(err), err
		}
		n.logger.Debug().Int("attempt", attempt+1).Hex("seed", uint32Bytes(seed)).Msg("probe sent")
		n.observer.emit(Event{Type: EventProbeSent, Phase: PhaseDiscovery, Attempt: attempt + 1, BaudRate: cfg.DiscoveryBaudRate})

		var resp ProbeResponse
		err := n.await(ctx, policy.RetryTimeout, func(_ frame.Frame, m Message) (step, error) {
			switch msg := m.(type) {
			case ProbeResponse:
				if msg.Seed != seed {
					n.stale(PhaseDiscovery, m, 0)
					return stepWait, nil
				}
				resp = msg
				return stepDone, nil
			case ProbeRequest:
				if msg.Seed == seed {
					n.logger.Warn().Hex("seed", uint32Bytes(seed)).Msg("probe collision")
					n.observer.emit(Event{Type: EventCollision, Phase: PhaseDiscovery, Attempt: attempt + 1})
					return stepDone, errCollision
				}
				n.logger.Debug().Hex("peer", uint32Bytes(msg.DeviceID)).Msg("ignoring probe from another initiator")
				return stepWait, nil
			default:
				n.unexpected(PhaseDiscovery, m)
				return stepWait, nil
			}
		})
		if errors.Is(err, errCollision) {
			return ProbeResponse{}, true, err
		}
		if err != nil {
			return ProbeResponse{}, IsRetryable(err), err
		}
		return resp, false, nil
	})
}

func (n *Negotiator) proposeCapability(ctx context.Context, params Params) (CapabilityAck, error) {
	policy := n.config.Negotiation.Capability
	nego := CapabilityNego{
		SessionID:   params.SessionID,
		Mode:        params.Mode,
		FileCount:   params.FileCount,
		TotalSize:   params.TotalSize,
		BaudRate:    uint32(params.BaudRate),
		ChunkSize:   uint16(params.ChunkSize),
		RootPath:    params.RootPath,
		HasRootPath: params.Version >= ProtocolVersion2,
	}

	config := retryEngineConfig(policy, "capability negotiation", n.rng, n.onRetry(PhaseCapability, frame.CmdCapabilityNego))
	return transport.WithRetry(ctx, config, func(int) (CapabilityAck, bool, error) {
		if err := n.link.Send(nego); err != nil {
			return CapabilityAck{}, IsRetryable(err), err
		}
		var ack CapabilityAck
		err := n.await(ctx, policy.RetryTimeout, func(_ frame.Frame, m Message) (step, error) {
			msg, ok := m.(CapabilityAck)
			if !ok {
				n.unexpected(PhaseCapability, m)
				return stepWait, nil
			}
			if msg.SessionID != params.SessionID {
				n.stale(PhaseCapability, m, msg.SessionID)
				return stepWait, nil
			}
			ack = msg
			return stepDone, nil
		})
		if err != nil {
			return CapabilityAck{}, IsRetryable(err), err
		}
		return ack, false, nil
	})
}

// requestSwitch schedules the switch, waits for the acknowledgement, then
// changes speed once the delay has passed
func (n *Negotiator) requestSwitch(ctx context.Context, params Params) error {
	cfg := n.config.Negotiation
	policy := cfg.Switch
	req := SwitchBaudRate{
		SessionID: params.SessionID,
		BaudRate:  uint32(params.BaudRate),
		DelayMS:   uint16(cfg.SwitchDelay / time.Millisecond),
	}

	config := retryEngineConfig(policy, "baud rate switch", n.rng, n.onRetry(PhaseSwitch, frame.CmdSwitchBaudRate))
	_, err := transport.WithRetry(ctx, config, func(int) (struct{}, bool, error) {
		if err := n.link.Send(req); err != nil {
			return struct{}{}, IsRetryable(err), err
		}
		err := n.await(ctx, policy.RetryTimeout, func(_ frame.Frame, m Message) (step, error) {
			switch msg := m.(type) {
			case SwitchAck:
				if msg.SessionID != params.SessionID {
					n.stale(PhaseSwitch, m, msg.SessionID)
					return stepWait, nil
				}
				return stepDone, nil
			case CapabilityAck:
				// Answer to a retried proposal
				return stepWait, nil
			default:
				n.unexpected(PhaseSwitch, m)
				return stepWait, nil
			}
		})
		return struct{}{}, err != nil && IsRetryable(err), err
	})
	if err != nil {
		return err
	}

	return n.switchAfter(ctx, params.SessionID, params.BaudRate, cfg.SwitchDelay)
}

// followSwitch waits for the initiator's switch request, acknowledges it and
// changes speed after the requested delay
func (n *Negotiator) followSwitch(ctx context.Context, nego CapabilityNego, ack CapabilityAck) error {
	cfg := n.config.Negotiation
	var req SwitchBaudRate
	err := n.await(ctx, cfg.Capability.window()+cfg.Switch.window(), func(_ frame.Frame, m Message) (step, error) {
		switch msg := m.(type) {
		case SwitchBaudRate:
			if msg.SessionID != nego.SessionID {
				n.stale(PhaseSwitch, m, msg.SessionID)
				return stepWait, nil
			}
			if msg.BaudRate != nego.BaudRate {
				return stepDone, newProtocolError("switch", m.Command(),
					"switch to %d, agreed %d", msg.BaudRate, nego.BaudRate)
			}
			req = msg
			return stepDone, nil
		case CapabilityNego:
			if msg.SessionID != nego.SessionID {
				n.stale(PhaseSwitch, m, msg.SessionID)
				return stepWait, nil
			}
			// The initiator missed our ack
			if err := n.link.Send(ack); err != nil {
				return stepDone, err
			}
			return stepRestart, nil
		default:
			n.unexpected(PhaseSwitch, m)
			return stepWait, nil
		}
	})
	if err != nil {
		return err
	}

	if err := n.link.Send(SwitchAck{SessionID: req.SessionID}); err != nil {
		return err
	}
	return n.switchAfter(ctx, req.SessionID, int(req.BaudRate), time.Duration(req.DelayMS)*time.Millisecond)
}

func (n *Negotiator) switchAfter(ctx context.Context, sessionID uint32, baud int, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := n.link.SwitchBaudRate(baud); err != nil {
		return err
	}
	n.logger.Info().Uint32("session_id", sessionID).Int("baud", baud).Msg("baud rate switched")
	n.observer.emit(Event{Type: EventBaudSwitched, Phase: PhaseSwitch, SessionID: sessionID, BaudRate: baud})
	return nil
}

// verifyInitiator exchanges CONNECTION_READY at the new rate. A transfer
// request from the peer also proves the link works; it stays queued for the
// sender.
func (n *Negotiator) verifyInitiator(ctx context.Context, sessionID uint32) error {
	timeout := n.config.Negotiation.ReadyTimeout
	deadline := time.Now().Add(timeout)
	interval := max(timeout/4, 10*time.Millisecond)

	for {
		if err := n.link.Send(ConnectionReady{SessionID: sessionID}); err != nil {
			return err
		}
		wait := min(interval, time.Until(deadline))
		err := n.await(ctx, wait, func(f frame.Frame, m Message) (step, error) {
			switch msg := m.(type) {
			case ConnectionReady:
				if msg.SessionID != sessionID {
					n.stale(PhaseVerification, m, msg.SessionID)
					return stepWait, nil
				}
				return stepDone, nil
			case FileSizeRequest, FileNameRequest:
				n.logger.Debug().Stringer("cmd", m.Command()).Msg("transfer request accepted as verification")
				n.link.Requeue(f)
				return stepDone, nil
			default:
				n.unexpected(PhaseVerification, m)
				return stepWait, nil
			}
		})
		if err == nil || GetErrorType(err) != ErrorTypeTimeout || time.Until(deadline) <= 0 {
			return err
		}
	}
}

func (n *Negotiator) verifyResponder(ctx context.Context, sessionID uint32) error {
	err := n.await(ctx, n.config.Negotiation.ReadyTimeout, func(_ frame.Frame, m Message) (step, error) {
		msg, ok := m.(ConnectionReady)
		if !ok {
			n.unexpected(PhaseVerification, m)
			return stepWait, nil
		}
		if msg.SessionID != sessionID {
			n.stale(PhaseVerification, m, msg.SessionID)
			return stepWait, nil
		}
		return stepDone, nil
	})
	if err != nil {
		return err
	}
	return n.link.Send(ConnectionReady{SessionID: sessionID})
}

// listen waits for the first probe and answers it
func (n *Negotiator) listen(ctx context.Context) (ProbeRequest, error) {
	var probe ProbeRequest
	err := n.await(ctx, n.config.Negotiation.ListenTimeout, func(_ frame.Frame, m Message) (step, error) {
		msg, ok := m.(ProbeRequest)
		if !ok {
			n.unexpected(PhaseDiscovery, m)
			return stepWait, nil
		}
		probe = msg
		return stepDone, n.answerProbe(msg)
	})
	return probe, err
}

// awaitCapability waits for a proposal, answering probes the initiator
// repeats because our response went missing
func (n *Negotiator) awaitCapability(ctx context.Context) (CapabilityNego, error) {
	cfg := n.config.Negotiation
	var nego CapabilityNego
	err := n.await(ctx, cfg.Discovery.window()+cfg.Capability.RetryTimeout, func(_ frame.Frame, m Message) (step, error) {
		switch msg := m.(type) {
		case CapabilityNego:
			nego = msg
			return stepDone, nil
		case ProbeRequest:
			if err := n.answerProbe(msg); err != nil {
				return stepDone, err
			}
			return stepRestart, nil
		default:
			n.unexpected(PhaseCapability, m)
			return stepWait, nil
		}
	})
	return nego, err
}

func (n *Negotiator) answerProbe(probe ProbeRequest) error {
	cfg := n.config.Negotiation
	rates := make([]uint32, len(cfg.BaudRates))
	for i, baud := range cfg.BaudRates {
		rates[i] = uint32(baud)
	}
	n.logger.Debug().Hex("peer", uint32Bytes(probe.DeviceID)).Msg("answering probe")
	return n.link.Send(ProbeResponse{
		DeviceID:  n.deviceID,
		Version:   cfg.ProtocolVersion,
		Seed:      probe.Seed,
		BaudRates: rates,
	})
}

func (n *Negotiator) validateCapability(nego CapabilityNego, accept AcceptFunc) error {
	switch {
	case !slices.Contains(n.config.Negotiation.BaudRates, int(nego.BaudRate)):
		return fmt.Errorf("%w: baud rate %d not supported", ErrInvalidParameter, nego.BaudRate)
	case int(nego.ChunkSize) < MinChunkSize:
		return fmt.Errorf("%w: chunk size %d below %d", ErrInvalidParameter, nego.ChunkSize, MinChunkSize)
	case nego.Mode != ModeSingle && nego.Mode != ModeBatch:
		return fmt.Errorf("%w: transfer mode %d", ErrInvalidParameter, nego.Mode)
	}
	if accept != nil {
		return accept(nego)
	}
	return nil
}

// await reads messages until handle reports stepDone or timeout passes
// without progress. stepRestart starts the timeout over.
func (n *Negotiator) await(ctx context.Context, timeout time.Duration, handle func(frame.Frame, Message) (step, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return NewTimeoutError("negotiate", n.link.Transport().Port())
		}
		f, err := n.link.Next(ctx, remaining)
		if err != nil {
			return err
		}
		m, err := ParseMessage(f)
		if err != nil {
			n.logger.Debug().Err(err).Msg("ignoring frame with invalid payload")
			n.observer.emit(Event{Type: EventFrameDiscarded, Command: f.Command, Err: err})
			continue
		}

		next, err := handle(f, m)
		switch {
		case err != nil:
			return err
		case next == stepDone:
			return nil
		case next == stepRestart:
			deadline = time.Now().Add(timeout)
		}
	}
}

func (n *Negotiator) enterDiscoveryRate() error {
	baud := n.config.Negotiation.DiscoveryBaudRate
	if n.link.Transport().BaudRate() == baud {
		return nil
	}
	n.logger.Debug().Int("baud", baud).Msg("switching to discovery baud rate")
	return n.link.SwitchBaudRate(baud)
}

func (n *Negotiator) revert(original int) error {
	if n.link.Transport().BaudRate() == original {
		return nil
	}
	if err := n.link.SwitchBaudRate(original); err != nil {
		return fmt.Errorf("revert baud rate to %d: %w", original, err)
	}
	n.logger.Info().Int("baud", original).Msg("baud rate reverted")
	n.observer.emit(Event{Type: EventBaudReverted, BaudRate: original})
	return nil
}

// degrade turns a phase failure into a degraded outcome. Cancellation and
// permanent transport failures are returned as errors instead.
func (n *Negotiator) degrade(ctx context.Context, phase Phase, cause error) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{}, cause
	}
	var te *TransportError
	if errors.As(cause, &te) && te.Type == ErrorTypePermanent {
		return Outcome{}, cause
	}

	n.logger.Warn().Err(cause).Str("phase", string(phase)).Msg("negotiation degraded")
	n.observer.emit(Event{Type: EventDegraded, Phase: phase, Err: cause})
	return Outcome{Status: StatusDegraded, Phase: phase, Reason: cause}, nil
}

func (n *Negotiator) onRetry(phase Phase, cmd frame.Command) func(int, time.Duration, error) error {
	return func(attempt int, delay time.Duration, cause error) error {
		n.logger.Debug().Err(cause).Str("phase", string(phase)).Int("attempt", attempt+1).
			Dur("backoff", delay).Msg("retrying")
		n.observer.emit(Event{Type: EventRequestRetry, Phase: phase, Command: cmd, Attempt: attempt + 1, Err: cause})
		return nil
	}
}

func (n *Negotiator) stale(phase Phase, m Message, sessionID uint32) {
	n.logger.Debug().Stringer("cmd", m.Command()).Uint32("session_id", sessionID).Msg("ignoring out-of-session frame")
	n.observer.emit(Event{Type: EventStaleSession, Phase: phase, Command: m.Command(), SessionID: sessionID})
}

func (n *Negotiator) unexpected(phase Phase, m Message) {
	if u, ok := m.(UnknownCommand); ok {
		n.logger.Warn().Stringer("cmd", u.Code).Str("phase", string(phase)).Msg("unknown command")
		n.observer.emit(Event{
			Type: EventUnknownCommand, Phase: phase, Command: u.Code,
			Err: fmt.Errorf("%w: %s", ErrUnknownCommand, u.Code),
		})
		return
	}
	n.logger.Debug().Stringer("cmd", m.Command()).Str("phase", string(phase)).Msg("ignoring unexpected frame")
}

// highestCommon returns the fastest rate present in both lists
func highestCommon(ours, theirs []int) (int, bool) {
	best, found := 0, false
	for _, baud := range ours {
		if baud > best && slices.Contains(theirs, baud) {
			best, found = baud, true
		}
	}
	return best, found
}

func toInts(rates []uint32) []int {
	out := make([]int, len(rates))
	for i, r := range rates {
		out[i] = int(r)
	}
	return out
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
