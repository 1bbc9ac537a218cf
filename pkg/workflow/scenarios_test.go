package workflow

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestWorkflow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workflow Suite")
}

// fakeStore is an in-memory stand-in for pkg/store.Postgres, scoped to this
// package's local store interface so scenario tests run without a database.
type fakeStore struct {
	reassignments map[string]*Reassignment
	notes         map[NoteKey]*Note
	crossBuild    []CrossBuildConflict
	rejectedCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{reassignments: map[string]*Reassignment{}, notes: map[NoteKey]*Note{}}
}

func (f *fakeStore) InsertReassignment(_ context.Context, r *Reassignment) (string, error) {
	f.reassignments[r.ID] = r
	return r.ID, nil
}

func (f *fakeStore) TransitionReassignment(_ context.Context, id string, newState ApprovalStatus, _ Actor, _ string) error {
	f.reassignments[id].ApprovalStatus = newState
	return nil
}

func (f *fakeStore) BulkRejectReassignments(_ context.Context, pred Predicate, _ Actor, rationale string) (int, error) {
	n := 0
	for id, r := range f.reassignments {
		if id == pred.ExcludeID {
			continue
		}
		if r.AccountID != pred.AccountID || r.BuildID != pred.BuildID {
			continue
		}
		if pred.NonTerminal && isTerminal(r.ApprovalStatus) {
			continue
		}
		r.ApprovalStatus = StatusRejected
		r.Rationale = rationale
		n++
	}
	f.rejectedCount = n
	return n, nil
}

func (f *fakeStore) UpsertNote(_ context.Context, n *Note) error {
	f.notes[n.NoteKey] = n
	return nil
}

func (f *fakeStore) DeleteNote(_ context.Context, key NoteKey) error {
	delete(f.notes, key)
	return nil
}

func (f *fakeStore) ReadCrossBuildReassignments(_ context.Context, accountIDs []string, excludeBuildID string) ([]CrossBuildConflict, error) {
	var out []CrossBuildConflict
	for _, c := range f.crossBuild {
		for _, id := range accountIDs {
			if c.AccountID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type fakeNotifier struct {
	superseded []string
}

func (f *fakeNotifier) NotifyProposalRejected(context.Context, string, string, string, string) error {
	return nil
}

func (f *fakeNotifier) NotifySuperseded(_ context.Context, recipient, _, _ string) error {
	f.superseded = append(f.superseded, recipient)
	return nil
}

var _ = Describe("S5 supersession", func() {
	It("rejects every other pending proposal and notifies both proposers", func() {
		fs := newFakeStore()
		fn := &fakeNotifier{}
		svc := NewService(fs, fn)
		ctx := context.Background()

		flmA := Actor{UserID: "flm-a", Name: "FLM A", Role: RoleFLM}
		flmB := Actor{UserID: "flm-b", Name: "FLM B", Role: RoleFLM}
		revOps := Actor{UserID: "revops-1", Name: "RevOps", Role: RoleRevOps}

		p1ID, err := svc.FileReassignment(ctx, &Reassignment{AccountID: "A8", BuildID: "build-x", ProposedOwner: "R3"}, flmA, false)
		Expect(err).NotTo(HaveOccurred())
		p2ID, err := svc.FileReassignment(ctx, &Reassignment{AccountID: "A8", BuildID: "build-x", ProposedOwner: "R4"}, flmB, false)
		Expect(err).NotTo(HaveOccurred())

		approved, err := svc.FileReassignment(ctx, &Reassignment{AccountID: "A8", BuildID: "build-x", ProposedOwner: "R5", ProposedOwnerName: "Rep Five"}, revOps, false)
		Expect(err).NotTo(HaveOccurred())

		approvedR := fs.reassignments[approved]
		Expect(approvedR.ApprovalStatus).To(Equal(StatusApproved))

		err = svc.Supersede(ctx, approvedR, revOps, map[string]string{"flm-a": "A8", "flm-b": "A8"})
		Expect(err).NotTo(HaveOccurred())

		Expect(fs.reassignments[p1ID].ApprovalStatus).To(Equal(StatusRejected))
		Expect(fs.reassignments[p1ID].Rationale).To(ContainSubstring("Superseded"))
		Expect(fs.reassignments[p2ID].ApprovalStatus).To(Equal(StatusRejected))
		Expect(fs.reassignments[p2ID].Rationale).To(ContainSubstring("Superseded"))

		Expect(fn.superseded).To(ConsistOf("flm-a", "flm-b"))
	})
})

var _ = Describe("S6 cross-build conflict is read-only", func() {
	It("surfaces the other build's pending reassignment without altering it", func() {
		fs := newFakeStore()
		fn := &fakeNotifier{}
		svc := NewService(fs, fn)

		fs.reassignments["r-x"] = &Reassignment{ID: "r-x", AccountID: "A9", BuildID: "build-x", ApprovalStatus: StatusPendingSLM}
		fs.crossBuild = []CrossBuildConflict{{AccountID: "A9", BuildName: "build-x", Count: 1}}

		conflicts, err := svc.CrossBuildConflicts(context.Background(), []string{"A9"}, "build-y")
		Expect(err).NotTo(HaveOccurred())
		Expect(conflicts).To(HaveLen(1))
		Expect(conflicts[0]).To(Equal(CrossBuildConflict{AccountID: "A9", BuildName: "build-x", Count: 1}))

		Expect(fs.reassignments["r-x"].ApprovalStatus).To(Equal(StatusPendingSLM))
	})
})
