package slq

import (
	"fmt"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/san-kum/hybridslq/internal/control"
	"github.com/san-kum/hybridslq/internal/dynamo"
	"github.com/san-kum/hybridslq/internal/problems"
	"github.com/san-kum/hybridslq/internal/rollout"
	"github.com/san-kum/hybridslq/internal/schedule"
)

var _ = ginkgo.Describe("EXP0", func() {
	var (
		solver   *Solver
		settings Settings
	)

	ginkgo.BeforeEach(func() {
		settings = exp0Settings()
	})

	ginkgo.JustBeforeEach(func() {
		var err error
		solver, err = New(fromProblem(problems.NewEXP0()), settings)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		ginkgo.DeferCleanup(solver.Close)
	})

	solve := func(boundaries []float64) *Result {
		res, err := solver.Run(testContext(), 0, dynamo.State{0, 2}, 2, boundaries)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		return res
	}

	expectOptimal := func(res *Result) {
		gomega.Expect(res.Status.State).To(gomega.Equal(Converged), "status: %+v", res.Status)
		gomega.Expect(res.Performance.Cost).To(gomega.BeNumerically("~", exp0OptimalCost, 5e-3))
		gomega.Expect(res.Performance.ISE1).To(gomega.BeNumerically("<", 1e-9))
		gomega.Expect(res.Performance.ISE2).To(gomega.BeNumerically("<", 1e-9))
		gomega.Expect(res.Controller.Kind).To(gomega.Equal(control.Linear))
	}

	ginkgo.It("reaches the optimal cost with a single partition", func() {
		expectOptimal(solve([]float64{0, 2}))
	})

	ginkgo.It("reaches the optimal cost with several partitions", func() {
		expectOptimal(solve([]float64{0, 1, 2}))
	})

	ginkgo.It("handles a switching time on a partition boundary", func() {
		res := solve([]float64{0, problems.EXP0SwitchingTime, 1, 2})
		expectOptimal(res)
		gomega.Expect(res.Trajectories[1].Events).To(gomega.ContainElement(0))
	})

	ginkgo.Context("with one thread", func() {
		ginkgo.BeforeEach(func() {
			settings.NThreads = 1
		})

		ginkgo.It("matches the multi-threaded result", func() {
			expectOptimal(solve(schedule.Uniform(0, 2, 4)))
		})
	})

	ginkgo.Context("with many threads", func() {
		ginkgo.BeforeEach(func() {
			settings.NThreads = 8
		})

		ginkgo.It("matches the single-threaded result", func() {
			expectOptimal(solve(schedule.Uniform(0, 2, 4)))
		})
	})

	ginkgo.Context("with default settings", func() {
		ginkgo.BeforeEach(func() {
			settings = DefaultSettings()
		})

		// rescore rolls the controller out again at far tighter tolerances.
		rescore := func(res *Result, boundaries []float64) float64 {
			tight := DefaultSettings()
			tight.AbsTolODE, tight.RelTolODE, tight.MaxTimeStep = 1e-12, 1e-10, 1e-4
			tight.MaxNumStepsPerSecond = 0
			ref, err := New(fromProblem(problems.NewEXP0()), tight)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			defer ref.Close()

			partitions, err := schedule.NewPartitions(0, 2, boundaries)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			policies := make([]rollout.Policy, partitions.Len())
			for k := range policies {
				policies[k] = res.Controller
			}
			w := ref.coordinator()
			trajs, err := ref.rolloutAll(testContext(), w, policies, dynamo.State{0, 2}, partitions)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			return w.eval.Evaluate(trajs, 0).Cost
		}

		for _, boundaries := range [][]float64{{0, 2}, {0, problems.EXP0SwitchingTime, 2}, {0, 0.5, 1, 1.5, 2}} {
			ginkgo.It(fmt.Sprintf("reports the true cost of its controller on %v", boundaries), func() {
				res := solve(boundaries)
				expectOptimal(res)
				gomega.Expect(res.Performance.Cost).To(gomega.BeNumerically("~", rescore(res, boundaries), 5e-4))
				gomega.Expect(res.Performance.Cost).To(gomega.BeNumerically(">", exp0OptimalCost-5e-4))
			})
		}
	})

	ginkgo.It("does not depend on the partitioning", func() {
		single := solve([]float64{0, 2})
		split := solve(schedule.Uniform(0, 2, 5))
		gomega.Expect(split.Performance.Cost).To(gomega.BeNumerically("~", single.Performance.Cost, 2e-3))

		for _, tm := range []float64{0.05, 0.5, 1.2, 1.9} {
			a := single.Controller.ComputeInput(tm, dynamo.State{0, 2})
			b := split.Controller.ComputeInput(tm, dynamo.State{0, 2})
			gomega.Expect(b[0]).To(gomega.BeNumerically("~", a[0], 5e-2), "input at t=%v", tm)
		}
	})

	ginkgo.It("returns a controller that survives a flatten round trip", func() {
		res := solve([]float64{0, 1, 2})
		c := res.Controller

		arrays := make([][]float64, c.Len())
		for i, tm := range c.Times {
			arrays[i] = c.Flatten(tm)
		}
		restored := control.NewLinear(2, 1)
		gomega.Expect(restored.UnFlatten(c.Times, arrays)).To(gomega.Succeed())
		for i, tm := range c.Times {
			gomega.Expect(restored.Flatten(tm)).To(gomega.Equal(arrays[i]))
		}
	})
})
