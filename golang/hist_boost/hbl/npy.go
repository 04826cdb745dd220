package hbl

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//ReadNpy reads the content of npy file into a dense matrix. One dimensional arrays become
//single column matrices.
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header of %s: %w", fileName, err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) == 1 {
		values := make([]float64, shape[0])
		if err := r.Read(&values); err != nil {
			return nil, fmt.Errorf("read npy vector %s: %w", fileName, err)
		}
		return mat.NewDense(len(values), 1, values), nil
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, fmt.Errorf("read npy matrix %s: %w", fileName, err)
	}
	slog.Debug("npy loaded", slog.String("file", fileName), slog.Any("shape", shape))
	return denseMat, nil
}

//ReadNpyVector reads a npy file holding a vector or a single column matrix.
func ReadNpyVector(fileName string) ([]float64, error) {
	m, err := ReadNpy(fileName)
	if err != nil {
		return nil, err
	}
	_, w := m.Dims()
	if w != 1 {
		return nil, fmt.Errorf("%s has %d columns, expected a vector", fileName, w)
	}
	return mat.Col(nil, 0, m), nil
}

//WriteNpy stores a vector as a one dimensional npy array.
func WriteNpy(fileName string, values []float64) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := npyio.Write(dst, values); err != nil {
		_ = dst.Close()
		return fmt.Errorf("write npy %s: %w", fileName, err)
	}
	return dst.Close()
}
