package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Fixed topology of every controller network.
const (
	HiddenSize = 18
	OutputSize = 3
)

var (
	// ErrWeightCount means a genome does not match the network's weight count.
	// It indicates configuration or checkpoint corruption and is never recovered by padding.
	ErrWeightCount = errors.New("nn: weight count mismatch")
	// ErrInputCount means a perception vector has the wrong length.
	ErrInputCount = errors.New("nn: input count mismatch")
)

// GenomeLength returns the number of weights for the given input size (no biases)
func GenomeLength(inputSize int) int {
	return inputSize*HiddenSize + HiddenSize*OutputSize
}

// Network is a two-layer sigmoid feedforward network bound to one genome.
//
// The genome is read in place: the first inputSize*HiddenSize genes form the
// input->hidden matrix row-major by hidden unit, the remaining genes the
// hidden->output matrix row-major by output unit. That is exactly the backing
// layout of a row-major mat.Dense, so the layers are views over the genome.
type Network struct {
	InputSize int

	w1 *mat.Dense // HiddenSize x InputSize
	w2 *mat.Dense // OutputSize x HiddenSize

	hidden mat.VecDense
}

// NewNetwork binds a genome to a network with the given input size
func NewNetwork(inputSize int, weights []float64) (*Network, error) {
	if inputSize <= 0 {
		return nil, fmt.Errorf("%w: input size %d", ErrInputCount, inputSize)
	}
	if want := GenomeLength(inputSize); len(weights) != want {
		return nil, fmt.Errorf("%w: got %d weights, want %d for input size %d",
			ErrWeightCount, len(weights), want, inputSize)
	}

	split := inputSize * HiddenSize
	return &Network{
		InputSize: inputSize,
		w1:        mat.NewDense(HiddenSize, inputSize, weights[:split]),
		w2:        mat.NewDense(OutputSize, HiddenSize, weights[split:]),
	}, nil
}

// Forward performs a forward pass and returns the three sigmoid outputs
func (n *Network) Forward(inputs []float64) ([]float64, error) {
	if len(inputs) != n.InputSize {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrInputCount, len(inputs), n.InputSize)
	}

	x := mat.NewVecDense(n.InputSize, inputs)
	n.hidden.MulVec(n.w1, x)
	for i := 0; i < HiddenSize; i++ {
		n.hidden.SetVec(i, Sigmoid(n.hidden.AtVec(i)))
	}

	var out mat.VecDense
	out.MulVec(n.w2, &n.hidden)

	result := make([]float64, OutputSize)
	for i := range result {
		result[i] = Sigmoid(out.AtVec(i))
	}
	return result, nil
}

// Infer maps a perception vector through the network described by weights.
func Infer(weights, inputs []float64) ([]float64, error) {
	if want := GenomeLength(len(inputs)); len(weights) != want {
		return nil, fmt.Errorf("%w: got %d weights, want %d for %d inputs",
			ErrWeightCount, len(weights), want, len(inputs))
	}
	net, err := NewNetwork(len(inputs), weights)
	if err != nil {
		return nil, err
	}
	return net.Forward(inputs)
}

// Sigmoid is the logistic function 1/(1+e^-x)
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// RandomGenome generates a genome with genes uniform in [-1,1]
func RandomGenome(size int, rng *rand.Rand) []float64 {
	genome := make([]float64, size)
	for i := range genome {
		genome[i] = RandomGene(rng)
	}
	return genome
}

// RandomGene draws one gene uniform in [-1,1]
func RandomGene(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

// CloneGenome makes a copy of a genome
func CloneGenome(src []float64) []float64 {
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst
}
