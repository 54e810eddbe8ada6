package cnn

import (
	"math"
	"math/rand"
)

// param is a trainable tensor with its accumulated gradient and Adam moments.
type param struct {
	w, g, m, v []float64
}

func newParam(n int) *param {
	return &param{
		w: make([]float64, n),
		g: make([]float64, n),
		m: make([]float64, n),
		v: make([]float64, n),
	}
}

// glorot fills the weights from the Glorot uniform distribution.
func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (p *param) zeroGrad() {
	clear(p.g)
}

// adam applies one bias-corrected Adam step using the accumulated gradient.
func (p *param) adam(lr, beta1, beta2, eps float64, step int) {
	t := float64(step)
	lrT := lr * math.Sqrt(1-math.Pow(beta2, t)) / (1 - math.Pow(beta1, t))
	for i, g := range p.g {
		p.m[i] = beta1*p.m[i] + (1-beta1)*g
		p.v[i] = beta2*p.v[i] + (1-beta2)*g*g
		p.w[i] -= lrT * p.m[i] / (math.Sqrt(p.v[i]) + eps)
	}
}

// conv1d is a 1-D convolution over a (steps, channels) sequence with "same" zero
// padding, so the output keeps the input's step count. Weights are indexed
// [(out*kernel + k)*in + c].
type conv1d struct {
	in, out, kernel int
	weight, bias    *param
}

func newConv1D(in, out, kernel int) *conv1d {
	return &conv1d{
		in:     in,
		out:    out,
		kernel: kernel,
		weight: newParam(out * kernel * in),
		bias:   newParam(out),
	}
}

func (l *conv1d) init(rng *rand.Rand) {
	l.weight.glorot(rng, l.kernel*l.in, l.kernel*l.out)
}

// padLeft matches the usual "same" convention: extra padding goes to the right.
func (l *conv1d) padLeft() int {
	return (l.kernel - 1) / 2
}

// forward writes the pre-activations for x (steps*in values) into z (steps*out values).
func (l *conv1d) forward(x, z []float64, steps int) {
	pad := l.padLeft()
	w, b := l.weight.w, l.bias.w
	for t := 0; t < steps; t++ {
		for o := 0; o < l.out; o++ {
			sum := b[o]
			for k := 0; k < l.kernel; k++ {
				src := t + k - pad
				if src < 0 || src >= steps {
					continue
				}
				wk := w[(o*l.kernel+k)*l.in:]
				xs := x[src*l.in:]
				for c := 0; c < l.in; c++ {
					sum += wk[c] * xs[c]
				}
			}
			z[t*l.out+o] = sum
		}
	}
}

// backward accumulates parameter gradients from dz and, when dx is non-nil,
// writes the gradient with respect to the input into dx.
func (l *conv1d) backward(x, dz, dx []float64, steps int) {
	pad := l.padLeft()
	w, gw, gb := l.weight.w, l.weight.g, l.bias.g
	if dx != nil {
		clear(dx)
	}
	for t := 0; t < steps; t++ {
		for o := 0; o < l.out; o++ {
			d := dz[t*l.out+o]
			if d == 0 {
				continue
			}
			gb[o] += d
			for k := 0; k < l.kernel; k++ {
				src := t + k - pad
				if src < 0 || src >= steps {
					continue
				}
				base := (o*l.kernel + k) * l.in
				for c := 0; c < l.in; c++ {
					gw[base+c] += d * x[src*l.in+c]
					if dx != nil {
						dx[src*l.in+c] += d * w[base+c]
					}
				}
			}
		}
	}
}

func (l *conv1d) params() []*param {
	return []*param{l.weight, l.bias}
}

// dense is a fully connected layer. Weights are indexed [out*in + i].
type dense struct {
	in, out      int
	weight, bias *param
}

func newDense(in, out int) *dense {
	return &dense{
		in:     in,
		out:    out,
		weight: newParam(out * in),
		bias:   newParam(out),
	}
}

func (l *dense) init(rng *rand.Rand) {
	l.weight.glorot(rng, l.in, l.out)
}

func (l *dense) forward(x, z []float64) {
	w, b := l.weight.w, l.bias.w
	for j := 0; j < l.out; j++ {
		sum := b[j]
		row := w[j*l.in : (j+1)*l.in]
		for i, xi := range x {
			sum += row[i] * xi
		}
		z[j] = sum
	}
}

func (l *dense) backward(x, dz, dx []float64) {
	w, gw, gb := l.weight.w, l.weight.g, l.bias.g
	if dx != nil {
		clear(dx)
	}
	for j := 0; j < l.out; j++ {
		d := dz[j]
		if d == 0 {
			continue
		}
		gb[j] += d
		base := j * l.in
		for i, xi := range x {
			gw[base+i] += d * xi
			if dx != nil {
				dx[i] += d * w[base+i]
			}
		}
	}
}

func (l *dense) params() []*param {
	return []*param{l.weight, l.bias}
}

func relu(z, a []float64) {
	for i, v := range z {
		if v > 0 {
			a[i] = v
		} else {
			a[i] = 0
		}
	}
}

// reluGrad masks d in place where the pre-activation was not positive.
func reluGrad(z, d []float64) {
	for i, v := range z {
		if v <= 0 {
			d[i] = 0
		}
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// clip keeps probabilities away from 0 and 1 so that outputs stay in the open
// interval and the cross-entropy stays finite.
func clip(p float64) float64 {
	return math.Min(math.Max(p, epsilon), 1-epsilon)
}

func binaryCrossEntropy(p, y float64) float64 {
	p = clip(p)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
