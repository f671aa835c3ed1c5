package embedder

import "math"

// meanPool computes attention-mask-weighted mean pooling over the sequence
// dimension of transformer hidden states.
//
// hidden: flat [batchSize * seqLen * dim] float32 (per-token hidden states)
// mask:   flat [batchSize * seqLen] int64 (1 for real tokens, 0 for padding)
//
// Returns flat [batchSize * dim] float32 (one pooled vector per sample).
func meanPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	out := make([]float32, batchSize*dim)

	for b := int64(0); b < batchSize; b++ {
		maskOff := b * seqLen
		hiddenOff := b * seqLen * dim
		pooled := out[b*dim : (b+1)*dim]

		var count float32
		for s := int64(0); s < seqLen; s++ {
			if mask[maskOff+s] == 0 {
				continue
			}
			count++
			tok := hidden[hiddenOff+s*dim : hiddenOff+(s+1)*dim]
			for d, v := range tok {
				pooled[d] += v
			}
		}
		if count == 0 {
			continue
		}

		inv := 1.0 / count
		for d := range pooled {
			pooled[d] *= inv
		}
	}

	return out
}

// Normalize scales vec to unit L2 norm in place and returns it. A zero
// vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Average returns the element-wise mean of vecs, re-normalized to unit
// length. All vectors must share one dimension; nil is returned for no input.
func Average(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range out {
			out[i] += v[i]
		}
	}
	inv := 1 / float32(len(vecs))
	for i := range out {
		out[i] *= inv
	}
	return Normalize(out)
}

// Dot returns the dot product of two equal-length vectors. For unit vectors
// this is their cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
