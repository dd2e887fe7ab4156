package nl2

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Masterminds/semver"
	"github.com/sirupsen/logrus"
)

const (
	// MinHostVersion is the oldest host release with the station control messages.
	MinHostVersion = ">= 2.5.3"

	// AdaptiveAge selects the speed dependent station cache age.
	AdaptiveAge time.Duration = -1

	movingStationAge     = 250 * time.Millisecond
	stationaryStationAge = time.Second
	movingSpeed          = 0.5
)

// Messenger adds the host's message set, a telemetry cache and a station poller on top of a Link.
type Messenger struct {
	*Link

	Coaster int32
	Station int32

	version   string
	telemetry *TelemetrySample
	telemAt   time.Time
	telemAge  time.Duration
	latency   time.Duration
	paused    bool
	prevState ConnState

	station      StationStatus
	stationAt    time.Time
	stationValid bool

	clock func() time.Time
}

func NewMessenger(link *Link) *Messenger {
	return &Messenger{
		Link:     link,
		telemAge: 45 * time.Millisecond,
		clock:    time.Now,
	}
}

func (m *Messenger) now() time.Time {
	return m.clock()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func payload(fields ...interface{}) []byte {
	buf := new(bytes.Buffer)
	for _, f := range fields {
		binary.Write(buf, binary.BigEndian, f)
	}
	return buf.Bytes()
}

// expect checks that a reply has exactly n bytes. A textual "not in play" reply moves
// the connection to NotInSimMode.
func (m *Messenger) expect(reply []byte, n int, label string) error {
	if len(reply) == n {
		return nil
	}
	if isNotInPlay(reply) {
		m.setState(NotInSimMode)
		log.WithField("reply", string(reply)).Debugf("%s: not in play mode", label)
		return ErrNotInPlayMode
	}
	return fmt.Errorf("%w: %s reply is %d bytes, want %d", ErrPayloadSize, label, len(reply), n)
}

//---
// Version and telemetry
//---

// GetVersion asks the host for its version as "a.b.c.d".
// A reply while Disconnected advances the state to NotInSimMode.
func (m *Messenger) GetVersion() (string, error) {
	reply, err := m.Request(MsgGetVersion, nil)
	if err != nil {
		return "", err
	}
	if len(reply) < 4 {
		return "", m.expect(reply, 4, "version")
	}

	vs := fmt.Sprintf("%d.%d.%d.%d", reply[0], reply[1], reply[2], reply[3])
	if vs != m.version {
		m.checkVersion(reply[:4])
	}
	m.version = vs
	if m.State() == Disconnected {
		m.setState(NotInSimMode)
	}
	return vs, nil
}

func (m *Messenger) checkVersion(v []byte) {
	semVer, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]))
	if err != nil {
		log.WithError(err).Warn("unable to parse host version")
		return
	}
	constraint, err := semver.NewConstraint(MinHostVersion)
	if err != nil {
		return
	}
	if !constraint.Check(semVer) {
		log.WithFields(logrus.Fields{"version": semVer, "require": MinHostVersion}).
			Warn("host version predates station control support")
	}
}

func (m *Messenger) Version() string {
	return m.version
}

// GetTelemetry polls one telemetry sample.
// A textual "not in play" reply sets NotInSimMode and returns no sample and no error.
// Any other malformed reply is a link fault.
func (m *Messenger) GetTelemetry() (*TelemetrySample, error) {
	start := m.now()
	reply, err := m.Request(MsgGetTelemetry, nil)
	if err != nil {
		return nil, err
	}

	tm, err := ParseTelemetry(reply)
	if err != nil {
		if isNotInPlay(reply) {
			m.setState(NotInSimMode)
			return nil, nil
		}
		log.WithField("len", len(reply)).Error("telemetry parse failed")
		m.setState(Disconnected)
		return nil, err
	}

	now := m.now()
	m.latency = now.Sub(start)
	tm.Received = now
	m.paused = tm.IsPaused()
	if tm.IsReady() {
		m.setState(Ready)
	} else {
		m.setState(NotInSimMode)
	}
	m.telemetry = tm
	m.telemAt = start
	return tm, nil
}

// SetTelemetryMaxAge sets the default cache age used by GetTelemetryThrottled.
func (m *Messenger) SetTelemetryMaxAge(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.telemAge = d
}

// GetTelemetryThrottled returns the cached sample while it is younger than maxAge,
// otherwise it polls. A zero maxAge uses the configured default.
func (m *Messenger) GetTelemetryThrottled(maxAge time.Duration) (*TelemetrySample, error) {
	if maxAge == 0 {
		maxAge = m.telemAge
	}
	if m.telemetry != nil && m.now().Sub(m.telemAt) < maxAge {
		return m.telemetry, nil
	}
	return m.GetTelemetry()
}

// Telemetry returns the most recent sample, if any.
func (m *Messenger) Telemetry() *TelemetrySample {
	return m.telemetry
}

func (m *Messenger) IsPaused() bool {
	return m.paused
}

// Latency is the round trip of the last telemetry poll.
func (m *Messenger) Latency() time.Duration {
	return m.latency
}

// EnteredReady reports a transition into Ready since the previous call, and runs the
// ready hook: nearest station lookup followed by forcing manual mode.
func (m *Messenger) EnteredReady(ctx context.Context) bool {
	cur := m.State()
	entered := cur == Ready && m.prevState != Ready
	m.prevState = cur
	if !entered {
		return false
	}

	log.Info("simulation host entered play mode")
	if _, _, err := m.GetNearestStation(); err != nil {
		log.WithError(err).Warn("nearest station lookup failed")
	}
	if !m.EnsureManualMode(ctx, true, 3, 200*time.Millisecond) {
		log.Warn("unable to confirm manual mode")
	}
	return true
}

// WaitForReady polls telemetry until the host is in play mode.
func (m *Messenger) WaitForReady(ctx context.Context, timeout, poll time.Duration) bool {
	deadline := m.now().Add(timeout)
	for m.now().Before(deadline) {
		m.GetTelemetry()
		if m.State() == Ready {
			return true
		}
		if sleep(ctx, poll) != nil {
			return false
		}
	}
	return false
}

//---
// Station poller
//---

func (m *Messenger) isMoving() bool {
	return m.telemetry != nil && abs(float64(m.telemetry.Speed)) >= movingSpeed
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// stationAge is 0.25s while the train moves and 1s while it is stationary.
func (m *Messenger) stationAge() time.Duration {
	if m.isMoving() {
		return movingStationAge
	}
	return stationaryStationAge
}

// StationState returns the station bitfield, polling when the cache is older than maxAge
// or force is set. AdaptiveAge picks the age from the train speed.
func (m *Messenger) StationState(maxAge time.Duration, force bool) (StationStatus, error) {
	if maxAge == AdaptiveAge {
		maxAge = m.stationAge()
	}
	now := m.now()
	if !force && m.stationValid && now.Sub(m.stationAt) <= maxAge {
		return m.station, nil
	}

	reply, err := m.Request(MsgGetStationState, payload(m.Coaster, m.Station))
	if err != nil {
		return m.station, err
	}
	if err = m.expect(reply, 4, "station state"); err != nil {
		return m.station, err
	}

	m.station = StationStatus(binary.BigEndian.Uint32(reply))
	m.stationAt = now
	m.stationValid = true
	return m.station, nil
}

// StationBit reports whether every bit of mask is set in a sufficiently fresh bitfield.
func (m *Messenger) StationBit(mask StationStatus, maxAge time.Duration) bool {
	s, err := m.StationState(maxAge, false)
	if err != nil {
		return false
	}
	return s.Has(mask)
}

// StationSnapshot returns the cached bitfield and when it was read.
func (m *Messenger) StationSnapshot() (StationStatus, time.Time) {
	return m.station, m.stationAt
}

// IsTrainInStation polls the station and requires both in-station bits.
func (m *Messenger) IsTrainInStation() bool {
	s, err := m.StationState(0, true)
	if err != nil {
		return false
	}
	return s.Has(TrainInStation | CurrentTrainInStation)
}

func (m *Messenger) IsManual(maxAge time.Duration) bool {
	return m.StationBit(ManualMode, maxAge)
}

// EnsureManualMode requests manual (true) or automatic mode until the station bit agrees
// or retries run out, and returns whether the final observation matches.
func (m *Messenger) EnsureManualMode(ctx context.Context, desired bool, retries int, wait time.Duration) bool {
	for i := 0; i < retries; i++ {
		if m.IsManual(250*time.Millisecond) == desired {
			return true
		}
		m.SetManualMode(desired)
		if sleep(ctx, wait) != nil {
			break
		}
		m.StationState(0, true)
	}
	return m.IsManual(250*time.Millisecond) == desired
}

// WaitStation polls until all bits of set are on and all bits of clear are off.
func (m *Messenger) WaitStation(ctx context.Context, set, clear StationStatus, timeout, poll time.Duration) bool {
	deadline := m.now().Add(timeout)
	for m.now().Before(deadline) {
		if s, err := m.StationState(0, true); err == nil && s.Has(set) && s&clear == 0 {
			return true
		}
		if sleep(ctx, poll) != nil {
			return false
		}
	}
	return false
}

//---
// Ride control
//---

func (m *Messenger) command(t MsgType, data []byte) error {
	reply, err := m.Request(t, data)
	if err != nil {
		return err
	}
	if isNotInPlay(reply) {
		m.setState(NotInSimMode)
		return ErrNotInPlayMode
	}
	return nil
}

// GetNearestStation selects the coaster and station closest to the camera.
func (m *Messenger) GetNearestStation() (coaster, station int32, err error) {
	reply, err := m.Request(MsgGetNearestStation, nil)
	if err != nil {
		return m.Coaster, m.Station, err
	}
	if err = m.expect(reply, 8, "nearest station"); err != nil {
		return m.Coaster, m.Station, err
	}
	m.Coaster = int32(binary.BigEndian.Uint32(reply[0:4]))
	m.Station = int32(binary.BigEndian.Uint32(reply[4:8]))
	log.WithFields(logrus.Fields{"coaster": m.Coaster, "station": m.Station}).Debug("nearest station")
	return m.Coaster, m.Station, nil
}

func (m *Messenger) stationCommand(t MsgType, mode bool) error {
	return m.command(t, payload(m.Coaster, m.Station, mode))
}

// SetManualMode switches the station between manual (true) and automatic dispatch.
func (m *Messenger) SetManualMode(manual bool) error {
	return m.stationCommand(MsgSetManualMode, manual)
}

func (m *Messenger) Dispatch() error {
	log.WithFields(logrus.Fields{"coaster": m.Coaster, "station": m.Station}).Info("dispatch")
	return m.command(MsgDispatch, payload(m.Coaster, m.Station))
}

// SetGates opens (true) or closes the gates.
func (m *Messenger) SetGates(open bool) error {
	return m.stationCommand(MsgSetGates, open)
}

// SetHarness opens (true) or closes the harness.
func (m *Messenger) SetHarness(open bool) error {
	return m.stationCommand(MsgSetHarness, open)
}

// SetPlatform lowers (true) or raises the station platform.
func (m *Messenger) SetPlatform(lower bool) error {
	return m.stationCommand(MsgSetPlatform, lower)
}

// SetFlyerCar unlocks (true) or locks the flyer car.
func (m *Messenger) SetFlyerCar(unlocked bool) error {
	return m.stationCommand(MsgSetFlyerCar, unlocked)
}

func (m *Messenger) LockFlyer() error   { return m.SetFlyerCar(false) }
func (m *Messenger) UnlockFlyer() error { return m.SetFlyerCar(true) }

func (m *Messenger) SetPause(paused bool) error {
	return m.command(MsgSetPause, payload(paused))
}

func (m *Messenger) ResetPark(startPaused bool) error {
	return m.command(MsgResetPark, payload(startPaused))
}

// SelectSeat moves the camera to seat in the first car of the first train.
func (m *Messenger) SelectSeat(seat int32) error {
	return m.command(MsgSelectSeat, payload(m.Coaster, int32(0), int32(0), seat))
}

func (m *Messenger) SetAttractionMode(on bool) error {
	return m.command(MsgSetAttractionMode, payload(on))
}

func (m *Messenger) RecenterVR() error {
	log.Info("recenter VR")
	return m.command(MsgRecenterVR, nil)
}

func (m *Messenger) ClosePark() error {
	return m.command(MsgClosePark, nil)
}

// LoadPark opens the park at path, waits for play mode and takes manual control of the nearest station.
func (m *Messenger) LoadPark(ctx context.Context, paused bool, path string) error {
	data := append(payload(paused), []byte(path)...)
	if err := m.command(MsgLoadPark, data); err != nil {
		return fmt.Errorf("loading park %q: %w", path, err)
	}
	if !m.WaitForReady(ctx, 10*time.Second, 200*time.Millisecond) {
		return fmt.Errorf("loading park %q: %w", path, ErrNotInPlayMode)
	}
	m.GetNearestStation()
	m.EnsureManualMode(ctx, true, 3, 200*time.Millisecond)
	return nil
}
