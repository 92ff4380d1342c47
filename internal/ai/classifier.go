package ai

import (
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
)

// ClassificationStatus is the agreement between the AI prediction and the
// ground-truth label.
type ClassificationStatus int

const (
	// StatusPredicted: no ground truth; the AI prediction stands alone.
	StatusPredicted ClassificationStatus = iota
	// StatusConfirmed: ground truth exists and the AI agrees.
	StatusConfirmed
	// StatusConflict: ground truth exists and the AI disagrees; needs review.
	StatusConflict
)

func (s ClassificationStatus) String() string {
	switch s {
	case StatusPredicted:
		return "predicted"
	case StatusConfirmed:
		return "confirmed"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// LabelScore is one label with its cosine similarity.
type LabelScore struct {
	Label string
	Score float32
}

// Classification is the result for a single law.
type Classification struct {
	LawName string
	// Domain is multi-select: all domains above threshold, best first.
	Domain []LabelScore
	// Family is single-select: the best-matching family.
	Family           string
	FamilyConfidence float32
	// Subjects is multi-select: all subjects above threshold, best first.
	Subjects []LabelScore
	Status   ClassificationStatus
}

// CentroidSummary summarises centroid computation.
type CentroidSummary struct {
	FamilyCount  int
	DomainCount  int
	SubjectCount int
	LawsUsed     int
}

// Classifier holds pre-computed centroids per label for family, domain, and
// subject. A law is classified by cosine similarity of its aggregated
// embedding against each centroid.
type Classifier struct {
	familyCentroids  map[string][]float32
	domainCentroids  map[string][]float32
	subjectCentroids map[string][]float32
	dim              int
}

// BuildClassifier computes centroids from labelled law embeddings.
// lawEmbeddings maps law_name to a normalised vector from
// AggregateLawEmbeddings.
func BuildClassifier(lawEmbeddings map[string][]float32, labels *LabelSet) *Classifier {
	dim := 384
	for _, v := range lawEmbeddings {
		dim = len(v)
		break
	}

	familyAccum := make(map[string]*centroidAccum)
	for name, family := range labels.TrainableLaws() {
		if emb, ok := lawEmbeddings[name]; ok {
			accumulate(familyAccum, family, emb, dim)
		}
	}

	domainAccum := make(map[string]*centroidAccum)
	for name, domains := range labels.LawDomain {
		if emb, ok := lawEmbeddings[name]; ok {
			// Multi-select: contribute to each domain's centroid.
			for _, d := range domains {
				accumulate(domainAccum, d, emb, dim)
			}
		}
	}

	subjectAccum := make(map[string]*centroidAccum)
	for name, subjects := range labels.LawSubjects {
		if emb, ok := lawEmbeddings[name]; ok {
			for _, s := range subjects {
				accumulate(subjectAccum, s, emb, dim)
			}
		}
	}

	return &Classifier{
		familyCentroids:  finalize(familyAccum),
		domainCentroids:  finalize(domainAccum),
		subjectCentroids: finalize(subjectAccum),
		dim:              dim,
	}
}

type centroidAccum struct {
	sum   []float32
	count int
}

func accumulate(m map[string]*centroidAccum, label string, emb []float32, dim int) {
	acc, ok := m[label]
	if !ok {
		acc = &centroidAccum{sum: make([]float32, dim)}
		m[label] = acc
	}
	for i, v := range emb {
		acc.sum[i] += v
	}
	acc.count++
}

func finalize(m map[string]*centroidAccum) map[string][]float32 {
	out := make(map[string][]float32, len(m))
	for label, acc := range m {
		if acc.count == 0 {
			continue
		}
		for i := range acc.sum {
			acc.sum[i] /= float32(acc.count)
		}
		normalize(acc.sum)
		out[label] = acc.sum
	}
	return out
}

// Classify classifies a single law from its aggregated embedding, comparing
// the prediction against ground truth to set the status.
func (c *Classifier) Classify(lawName string, embedding []float32, labels *LabelSet, domainThreshold, subjectThreshold float32) Classification {
	family, familyConf := bestMatch(c.familyCentroids, embedding)
	domain := aboveThreshold(c.domainCentroids, embedding, domainThreshold)
	subjects := aboveThreshold(c.subjectCentroids, embedding, subjectThreshold)

	status := StatusPredicted
	if gt, ok := labels.LawFamily[lawName]; ok {
		if gt == family {
			status = StatusConfirmed
		} else {
			status = StatusConflict
		}
	}

	return Classification{
		LawName:          lawName,
		Domain:           domain,
		Family:           family,
		FamilyConfidence: familyConf,
		Subjects:         subjects,
		Status:           status,
	}
}

// ClassifyBatch classifies every law in lawEmbeddings.
func (c *Classifier) ClassifyBatch(lawEmbeddings map[string][]float32, labels *LabelSet, domainThreshold, subjectThreshold float32) []Classification {
	out := make([]Classification, 0, len(lawEmbeddings))
	for name, emb := range lawEmbeddings {
		out = append(out, c.Classify(name, emb, labels, domainThreshold, subjectThreshold))
	}
	return out
}

// Summary reports centroid counts.
func (c *Classifier) Summary(lawsUsed int) CentroidSummary {
	return CentroidSummary{
		FamilyCount:  len(c.familyCentroids),
		DomainCount:  len(c.domainCentroids),
		SubjectCount: len(c.subjectCentroids),
		LawsUsed:     lawsUsed,
	}
}

// FamilyCount returns the number of family centroids.
func (c *Classifier) FamilyCount() int { return len(c.familyCentroids) }

// DomainCount returns the number of domain centroids.
func (c *Classifier) DomainCount() int { return len(c.domainCentroids) }

// SubjectCount returns the number of subject centroids.
func (c *Classifier) SubjectCount() int { return len(c.subjectCentroids) }

// Dim returns the embedding dimensionality.
func (c *Classifier) Dim() int { return c.dim }

// AggregateLawEmbeddings mean-pools section-level embeddings into one
// law-level embedding per law, then L2-normalises. Input batches carry a
// law_name column (utf8 or large_utf8) and an embedding column
// (fixed_size_list<float32>).
func AggregateLawEmbeddings(batches []arrow.Record) (map[string][]float32, error) {
	type accum struct {
		sum   []float32
		count int
	}
	acc := make(map[string]*accum)

	for _, batch := range batches {
		nameCol := columnByName(batch, "law_name")
		if nameCol == nil {
			return nil, fmt.Errorf("missing 'law_name' column")
		}
		embCol := columnByName(batch, "embedding")
		if embCol == nil {
			return nil, fmt.Errorf("missing 'embedding' column")
		}
		fsl, ok := embCol.(*array.FixedSizeList)
		if !ok {
			return nil, fmt.Errorf("embedding column is %s, not fixed_size_list", embCol.DataType())
		}
		dim := int(fsl.DataType().(*arrow.FixedSizeListType).Len())
		flat, ok := fsl.ListValues().(*array.Float32)
		if !ok {
			return nil, fmt.Errorf("embedding values are not float32")
		}

		for row := 0; row < int(batch.NumRows()); row++ {
			if nameCol.IsNull(row) || embCol.IsNull(row) {
				continue
			}
			name, _ := stringAt(nameCol, row)
			offset := row * dim

			a, ok := acc[name]
			if !ok {
				a = &accum{sum: make([]float32, dim)}
				acc[name] = a
			}
			for i := 0; i < dim; i++ {
				a.sum[i] += flat.Value(offset + i)
			}
			a.count++
		}
	}

	out := make(map[string][]float32, len(acc))
	for name, a := range acc {
		if a.count == 0 {
			continue
		}
		for i := range a.sum {
			a.sum[i] /= float32(a.count)
		}
		normalize(a.sum)
		out[name] = a.sum
	}
	return out, nil
}

// ── Similarity helpers ──

func bestMatch(centroids map[string][]float32, embedding []float32) (string, float32) {
	best := ""
	bestSim := float32(math.Inf(-1))
	for label, centroid := range centroids {
		sim := CosineSim(embedding, centroid)
		if sim > bestSim || (sim == bestSim && label < best) {
			bestSim = sim
			best = label
		}
	}
	return best, bestSim
}

func aboveThreshold(centroids map[string][]float32, embedding []float32, threshold float32) []LabelScore {
	var matches []LabelScore
	for label, centroid := range centroids {
		if sim := CosineSim(embedding, centroid); sim >= threshold {
			matches = append(matches, LabelScore{Label: label, Score: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Label < matches[j].Label
	})
	return matches
}

// CosineSim is the dot product of two unit vectors.
func CosineSim(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize L2-normalises a vector in place.
func normalize(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sq))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
