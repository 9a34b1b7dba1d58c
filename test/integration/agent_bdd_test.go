//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/daemon"
	"github.com/parentalcompanion/agentd/internal/domain"
	"github.com/parentalcompanion/agentd/internal/infra"
	"github.com/parentalcompanion/agentd/internal/metrics"
	"github.com/parentalcompanion/agentd/internal/policy"
	"github.com/parentalcompanion/agentd/internal/remote"
	"github.com/parentalcompanion/agentd/internal/usecase"
	"github.com/parentalcompanion/agentd/test/fixtures"
)

// recordingActuator records enforcement actions instead of touching the OS.
type recordingActuator struct {
	mu            sync.Mutex
	lockMessages  []string
	homeCount     int
	notifications []string
}

func (a *recordingActuator) ShowLockScreen(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lockMessages = append(a.lockMessages, message)
	return nil
}

func (a *recordingActuator) NavigateHome() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.homeCount++
	return nil
}

func (a *recordingActuator) ShowNotification(title, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifications = append(a.notifications, title)
	return nil
}

func (a *recordingActuator) locks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.lockMessages))
	copy(out, a.lockMessages)
	return out
}

func (a *recordingActuator) homes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.homeCount
}

// scriptedUsageSampler serves a settable usage snapshot.
type scriptedUsageSampler struct {
	mu   sync.Mutex
	snap domain.UsageSnapshot
}

func (s *scriptedUsageSampler) Sample(ctx context.Context) (domain.UsageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.SampledAt = time.Now()
	return snap, nil
}

func (s *scriptedUsageSampler) set(snap domain.UsageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// scriptedPositionSampler serves a settable position fix.
type scriptedPositionSampler struct {
	mu  sync.Mutex
	pos *domain.Position
}

func (s *scriptedPositionSampler) Sample(ctx context.Context) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return nil, nil
	}
	pos := *s.pos
	pos.Timestamp = time.Now()
	return &pos, nil
}

func (s *scriptedPositionSampler) set(pos *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

var _ = Describe("Enforcement Agent", func() {
	var (
		store    *fixtures.FakePolicyStore
		actuator *recordingActuator
		usage    *scriptedUsageSampler
		position *scriptedPositionSampler
		handle   *daemon.Handle
		cancel   context.CancelFunc
	)

	baseDocument := func() fixtures.PolicyDocument {
		return fixtures.PolicyDocument{
			ScreenTime: fixtures.ScreenTime{DailyLimitMinutes: 120},
			Apps: []fixtures.AppRule{
				{PackageID: "com.example.game", DisplayName: "Game", Blocked: true},
			},
			Contacts: []fixtures.ContactRule{
				{ContactID: "c1", PhoneNumber: "+1-555-1234", Allowed: true},
			},
		}
	}

	startAgent := func() {
		logger := zap.NewNop()
		cache := policy.NewCache(logger)
		m := metrics.New()

		client := remote.NewClient(store.URL(), "dev-1", "tok", time.Second, logger)
		enforcer := usecase.NewEnforcer(cache, actuator, client, m, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		events := remote.NewWatcher(client, 20*time.Millisecond, logger).Watch(ctx)

		registry := infra.NewStatusFileWithPath(
			GinkgoT().TempDir() + "/status.json")

		agent := daemon.NewAgent(
			daemon.Config{
				UsagePoll:    10 * time.Millisecond,
				UsagePublish: 30 * time.Millisecond,
				PositionPoll: 15 * time.Millisecond,
				Heartbeat:    20 * time.Millisecond,
				WriteTimeout: time.Second,
			},
			cache, enforcer, usage, position, client, registry, events, m,
			domain.AgentStatus{PID: 1, DeviceID: "dev-1"}, logger,
		)
		handle = daemon.Start(agent)
	}

	BeforeEach(func() {
		store = fixtures.NewFakePolicyStore(baseDocument())
		actuator = &recordingActuator{}
		usage = &scriptedUsageSampler{}
		position = &scriptedPositionSampler{}
	})

	AfterEach(func() {
		if handle != nil {
			ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			Expect(handle.Stop(ctx)).To(Succeed())
			handle = nil
		}
		if cancel != nil {
			cancel()
		}
		store.Close()
	})

	Describe("remote lock", func() {
		It("locks when the administrator sets the flag and unlocks on clear", func() {
			startAgent()

			doc := store.Document()
			doc.IsLocked = true
			store.SetDocument(doc)

			Eventually(actuator.locks, 2*time.Second, 10*time.Millisecond).
				Should(HaveLen(1))
			Expect(actuator.locks()[0]).To(ContainSubstring("administrator"))

			doc.IsLocked = false
			store.SetDocument(doc)
			// Give the poller a few cycles to observe the unlock before
			// flipping the flag back.
			time.Sleep(150 * time.Millisecond)
			doc.IsLocked = true
			store.SetDocument(doc)

			// A fresh lock transition fires again after the unlock.
			Eventually(actuator.locks, 2*time.Second, 10*time.Millisecond).
				Should(HaveLen(2))
		})
	})

	Describe("app blocking", func() {
		It("sends a blocked foreground app back to the home screen", func() {
			usage.set(domain.UsageSnapshot{
				ForegroundPackageID:    "com.example.game",
				TotalForegroundMinutes: 10,
			})
			startAgent()

			Eventually(actuator.homes, 2*time.Second, 10*time.Millisecond).
				Should(BeNumerically(">=", 1))
		})

		It("keeps enforcing the cached policy after the store goes down", func() {
			usage.set(domain.UsageSnapshot{
				ForegroundPackageID:    "com.example.game",
				TotalForegroundMinutes: 10,
			})
			startAgent()

			// First home action proves the cache is hydrated.
			Eventually(actuator.homes, 2*time.Second, 10*time.Millisecond).
				Should(BeNumerically(">=", 1))
			store.Close()

			// Enforcement continues from the cached rules.
			after := actuator.homes()
			Eventually(actuator.homes, 2*time.Second, 10*time.Millisecond).
				Should(BeNumerically(">", after))
		})
	})

	Describe("screen time", func() {
		It("locks once the daily budget is used up", func() {
			usage.set(domain.UsageSnapshot{
				ForegroundPackageID:    "com.example.mail",
				TotalForegroundMinutes: 119,
			})
			startAgent()

			Consistently(actuator.locks, 100*time.Millisecond, 10*time.Millisecond).
				Should(BeEmpty())

			usage.set(domain.UsageSnapshot{
				ForegroundPackageID:    "com.example.mail",
				TotalForegroundMinutes: 120,
			})
			Eventually(actuator.locks, 2*time.Second, 10*time.Millisecond).
				Should(HaveLen(1))
			Expect(actuator.locks()[0]).To(ContainSubstring("120 minutes"))
		})
	})

	Describe("locate requests", func() {
		It("publishes a fresh fix and clears the request", func() {
			position.set(&domain.Position{Latitude: -33.86, Longitude: 151.20})
			startAgent()

			doc := store.Document()
			doc.RequestLocation = true
			store.SetDocument(doc)

			Eventually(func() bool {
				return len(store.Writes("locate")) > 0
			}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

			var loc struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}
			Expect(store.LastWrite("location", &loc)).To(BeTrue())
			Expect(loc.Latitude).To(BeNumerically("~", -33.86, 0.001))
			Expect(store.Document().RequestLocation).To(BeFalse())
		})
	})

	Describe("presence", func() {
		It("reports online while running and offline on shutdown", func() {
			startAgent()

			var status struct {
				Online bool `json:"online"`
			}
			Eventually(func() bool {
				return store.LastWrite("status", &status)
			}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			Expect(status.Online).To(BeTrue())

			ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			Expect(handle.Stop(ctx)).To(Succeed())
			handle = nil

			Expect(store.LastWrite("status", &status)).To(BeTrue())
			Expect(status.Online).To(BeFalse())
		})
	})

	Describe("usage reporting", func() {
		It("publishes total foreground minutes to the store", func() {
			usage.set(domain.UsageSnapshot{
				ForegroundPackageID:    "com.example.mail",
				TotalForegroundMinutes: 42,
			})
			startAgent()

			var report struct {
				TotalMinutes int `json:"totalMinutes"`
			}
			Eventually(func() int {
				if !store.LastWrite("usage", &report) {
					return -1
				}
				return report.TotalMinutes
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(42))
		})
	})
})
