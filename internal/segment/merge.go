package segment

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Params configures a VDF-variant merge pass.
type Params struct {
	// CorrThreshold is the inclusive NCC merge threshold. Two segments with
	// coefficient >= CorrThreshold end up in the same group, directly or
	// through a chain of intermediate segments.
	CorrThreshold float64

	// VectorThreshold is the minimum union source-vector count a merged
	// group must reach to survive. Groups backed by too few diffraction
	// peaks are assumed to be noise or mis-segmentation.
	VectorThreshold int

	// Workers bounds the parallel NCC computation (0 = GOMAXPROCS).
	Workers int
}

// DefaultParams returns merge parameters tuned for watershed-split VDF
// segments of overlapping nanocrystals.
func DefaultParams() Params {
	return Params{
		CorrThreshold:   0.7,
		VectorThreshold: 4,
		Workers:         0,
	}
}

func (p Params) validate() error {
	if p.CorrThreshold < -1 || p.CorrThreshold > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "corr threshold %v outside [-1,1]", p.CorrThreshold)
	}
	if p.VectorThreshold < 0 {
		return errors.Wrapf(ErrInvalidThreshold, "negative vector threshold %d", p.VectorThreshold)
	}
	return nil
}

// MergeGroup is one connected component of the correlation graph: the member
// indices from the input batch and the summed segment they collapse into.
type MergeGroup struct {
	// Members holds the original batch indices, ascending.
	Members []int

	// Segment is the elementwise sum of the member images; its Vectors is
	// the union (not concatenation) of the members' vector sets.
	Segment *Segment
}

// Merge runs the full VDF-variant pass: correlate, group transitively, sum
// each group, then drop groups whose union vector count falls below
// params.VectorThreshold. Surviving groups are ordered by their lowest
// original index.
func Merge(batch Batch, params Params) ([]MergeGroup, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	corr, err := Correlate(batch, params.Workers)
	if err != nil {
		return nil, err
	}

	components := connectedGroups(corr, func(i, j int) bool {
		if corr.ZeroVariance(i) || corr.ZeroVariance(j) {
			return false
		}
		return corr.At(i, j) >= params.CorrThreshold
	})

	var out []MergeGroup
	for _, members := range components {
		merged := sumSegments(batch, members)
		if merged.VectorCount() < params.VectorThreshold {
			continue
		}
		out = append(out, MergeGroup{Members: members, Segment: merged})
	}
	return out, nil
}

// PairedParams configures a dual-criterion merge pass over factor/loading
// pairs from a matrix decomposition.
type PairedParams struct {
	// CorrThFactors and CorrThLoadings are the inclusive NCC thresholds for
	// the detector-space factor pair and scan-space loading pair. Both must
	// be met for an edge.
	CorrThFactors  float64
	CorrThLoadings float64

	Workers int
}

// DefaultPairedParams returns thresholds suitable for NMF components of
// scanning-diffraction data.
func DefaultPairedParams() PairedParams {
	return PairedParams{
		CorrThFactors:  0.4,
		CorrThLoadings: 0.4,
		Workers:        0,
	}
}

func (p PairedParams) validate() error {
	if p.CorrThFactors < -1 || p.CorrThFactors > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "factor threshold %v outside [-1,1]", p.CorrThFactors)
	}
	if p.CorrThLoadings < -1 || p.CorrThLoadings > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "loading threshold %v outside [-1,1]", p.CorrThLoadings)
	}
	return nil
}

// PairedGroup is a merged factor/loading pair. Factor and Loading are summed
// independently over the same member set, so the one-to-one pairing of the
// input batches is preserved in the output.
type PairedGroup struct {
	Members []int
	Factor  *Segment
	Loading *Segment
}

// MergePaired runs the dual-criterion pass: factors[i] pairs with
// loadings[i], and segments i and j join the same group only when both the
// factor correlation and the loading correlation reach their thresholds.
// There is no vector-count filter here; callers typically apply an
// intensity-sum cut afterwards (see decomp.FilterByIntensity).
func MergePaired(factors, loadings Batch, params PairedParams) ([]PairedGroup, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(factors) != len(loadings) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"%d factors vs %d loadings", len(factors), len(loadings))
	}

	factorCorr, err := Correlate(factors, params.Workers)
	if err != nil {
		return nil, err
	}
	loadingCorr, err := Correlate(loadings, params.Workers)
	if err != nil {
		return nil, err
	}

	components := connectedGroups(factorCorr, func(i, j int) bool {
		if factorCorr.ZeroVariance(i) || factorCorr.ZeroVariance(j) ||
			loadingCorr.ZeroVariance(i) || loadingCorr.ZeroVariance(j) {
			return false
		}
		return factorCorr.At(i, j) >= params.CorrThFactors &&
			loadingCorr.At(i, j) >= params.CorrThLoadings
	})

	out := make([]PairedGroup, 0, len(components))
	for _, members := range components {
		out = append(out, PairedGroup{
			Members: members,
			Factor:  sumSegments(factors, members),
			Loading: sumSegments(loadings, members),
		})
	}
	return out, nil
}

// connectedGroups builds the merge graph over segment indices and returns its
// connected components. Transitive chains merge (A-B-C joins even when A and
// C alone fall below threshold); a greedy pairwise sweep would not preserve
// that, so the graph step is load-bearing. Components come back with members
// ascending, ordered by lowest member index.
func connectedGroups(corr *CorrMatrix, edge func(i, j int) bool) [][]int {
	n := corr.Len()
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if edge(i, j) {
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}

	components := topo.ConnectedComponents(g)
	groups := make([][]int, 0, len(components))
	for _, comp := range components {
		members := make([]int, 0, len(comp))
		for _, node := range comp {
			members = append(members, int(node.ID()))
		}
		sort.Ints(members)
		groups = append(groups, members)
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a][0] < groups[b][0]
	})
	return groups
}

// sumSegments produces the elementwise sum of the member images with the
// union of their vector sets.
func sumSegments(batch Batch, members []int) *Segment {
	first := batch[members[0]]
	merged := New(first.Width, first.Height)
	vectorSets := make([][]int, 0, len(members))
	for _, idx := range members {
		floats.Add(merged.Pixels, batch[idx].Pixels)
		vectorSets = append(vectorSets, batch[idx].Vectors)
	}
	merged.Vectors = unionVectors(vectorSets...)
	return merged
}
