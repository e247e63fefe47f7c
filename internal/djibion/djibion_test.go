package djibion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideMonotonicCounters(t *testing.T) {
	e := NewEngine()
	totalBefore, rejBefore, trBefore := e.Total, e.Rejected, e.Transformed

	Decide(e, ActionFSWrite, "C:\\x.txt", 10)

	require.Equal(t, totalBefore+1, e.Total)
	require.GreaterOrEqual(t, e.Rejected, rejBefore)
	require.GreaterOrEqual(t, e.Transformed, trBefore)
}

func TestPathTraversalRejected(t *testing.T) {
	e := NewEngine()
	d := Decide(e, ActionFSWrite, "..\\escape.bin", 10)
	require.Equal(t, VerdictReject, d.Verdict)
	require.InDelta(t, 80, int(d.Risk), 5)
}

func TestPrefixTransformRewritesPath(t *testing.T) {
	e := NewEngine()
	e.Laws.FSMutPrefix = "C:\\sandbox"

	d := Decide(e, ActionFSWrite, "D:\\other\\note.txt", 10)
	require.Equal(t, VerdictTransform, d.Verdict)
	require.Equal(t, "C:\\sandbox\\note.txt", d.TransformedArg0)
}

func TestPrefixTransformIdempotentWhenAlreadyInside(t *testing.T) {
	e := NewEngine()
	e.Laws.FSMutPrefix = "C:\\sandbox"

	d := Decide(e, ActionFSWrite, "C:\\sandbox\\note.txt", 10)
	require.Equal(t, VerdictAllow, d.Verdict)
	require.Empty(t, d.TransformedArg0)
}

func TestFSRmOutsidePrefixRejectsRatherThanTransforms(t *testing.T) {
	e := NewEngine()
	e.Laws.AllowFSDelete = true
	e.Laws.FSMutPrefix = "C:\\sandbox"

	d := Decide(e, ActionFSRm, "D:\\other\\note.txt", 0)
	require.Equal(t, VerdictReject, d.Verdict)
}

func TestFSWriteExceedsByteBudget(t *testing.T) {
	e := NewEngine()
	e.Laws.MaxFSWriteBytes = 100

	d := Decide(e, ActionFSWrite, "C:\\x.txt", 1000)
	require.Equal(t, VerdictReject, d.Verdict)
	require.Contains(t, d.Reason, "max bytes")
}

func TestOOExecDisabledByLaws(t *testing.T) {
	e := NewEngine()
	e.Laws.AllowOOExec = false

	d := Decide(e, ActionOOExec, "", 1)
	require.Equal(t, VerdictReject, d.Verdict)
}

func TestBaselineAllowForUnspecialCasedAction(t *testing.T) {
	e := NewEngine()
	d := Decide(e, ActionNone, "", 0)
	require.Equal(t, VerdictAllow, d.Verdict)
	require.Equal(t, uint8(5), d.Risk)
}

func TestBiocodeToIntentMapsFirstCodon(t *testing.T) {
	intent, err := BiocodeToIntent("ATG-CGA-TTA")
	require.NoError(t, err)
	require.Equal(t, IntentMemoryBind, intent.Type)
}

func TestBiocodeToIntentIgnoresDashesAndSpace(t *testing.T) {
	intent, err := BiocodeToIntent("CG-A TAT")
	require.NoError(t, err)
	require.Equal(t, IntentIoWrite, intent.Type)
}

func TestBiocodeToIntentRejectsInvalidCharacter(t *testing.T) {
	_, err := BiocodeToIntent("ATX")
	require.ErrorIs(t, err, ErrInvalidBiocode)
}

func TestBiocodeToIntentRejectsShortString(t *testing.T) {
	_, err := BiocodeToIntent("AT")
	require.ErrorIs(t, err, ErrInvalidBiocode)
}

func TestBiocodeHashStable(t *testing.T) {
	a, _ := BiocodeToIntent("ATG")
	b, _ := BiocodeToIntent("ATG")
	require.Equal(t, a.Hash, b.Hash)
}
