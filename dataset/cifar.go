package dataset

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Layout of the CIFAR binary distributions
// (https://www.cs.toronto.edu/~kriz/cifar.html).
const (
	C10SubDir  = "cifar-10-batches-bin"
	C100SubDir = "cifar-100-binary"

	Width  = 32
	Height = 32
	Depth  = 3

	imageSizeBytes = Height * Width * Depth
	c10Batches     = 5
)

// Split selects the training or test part of a CIFAR distribution.
type Split string

const (
	Train Split = "train"
	Test  Split = "test"
)

var (
	C10Labels = []string{"airplane", "automobile", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}

	C100FineLabels = []string{"apple", "aquarium_fish", "baby", "bear", "beaver", "bed", "bee", "beetle", "bicycle",
		"bottle", "bowl", "boy", "bridge", "bus", "butterfly", "camel", "can", "castle", "caterpillar", "cattle",
		"chair", "chimpanzee", "clock", "cloud", "cockroach", "couch", "crab", "crocodile", "cup", "dinosaur",
		"dolphin", "elephant", "flatfish", "forest", "fox", "girl", "hamster", "house", "kangaroo", "keyboard", "lamp",
		"lawn_mower", "leopard", "lion", "lizard", "lobster", "man", "maple_tree", "motorcycle", "mountain", "mouse",
		"mushroom", "oak_tree", "orange", "orchid", "otter", "palm_tree", "pear", "pickup_truck", "pine_tree", "plain",
		"plate", "poppy", "porcupine", "possum", "rabbit", "raccoon", "ray", "road", "rocket", "rose", "sea", "seal",
		"shark", "shrew", "skunk", "skyscraper", "snail", "snake", "spider", "squirrel", "streetcar", "sunflower",
		"sweet_pepper", "table", "tank", "telephone", "television", "tiger", "tractor", "train", "trout", "tulip",
		"turtle", "wardrobe", "whale", "willow_tree", "wolf", "woman", "worm"}
)

// LabelIndex returns the position of name in names, or -1.
func LabelIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// imageToTensor converts a CHW byte image to a [Depth, Height, Width] tensor
// scaled to [0,1].
func imageToTensor(image []byte) *tensor.Tensor {
	t := tensor.New(Depth, Height, Width)
	for i, b := range image {
		t.Data[i] = float64(b) / 255
	}
	return t
}

// readRecords reads fixed-size records of labelBytes followed by one image
// until EOF. labelAt picks which label byte is kept. When labels is non-empty
// records with other labels are skipped without decoding their pixels.
func readRecords(r io.Reader, labelBytes, labelAt int, labels []int) (*Dataset, error) {
	var keep map[int]bool
	if len(labels) > 0 {
		keep = make(map[int]bool, len(labels))
		for _, l := range labels {
			keep[l] = true
		}
	}
	br := bufio.NewReader(r)
	record := make([]byte, labelBytes+imageSizeBytes)
	out := &Dataset{}
	for n := 0; ; n++ {
		_, err := io.ReadFull(br, record)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading record %d", n)
		}
		label := int(record[labelAt])
		if keep != nil && !keep[label] {
			continue
		}
		out.Labels = append(out.Labels, label)
		out.Examples = append(out.Examples, imageToTensor(record[labelBytes:]))
	}
}

// ReadCIFAR10 parses a CIFAR-10 binary batch: <1 label byte><3072 pixel bytes>.
// Only records with the given labels are kept; none means all.
func ReadCIFAR10(r io.Reader, labels ...int) (*Dataset, error) {
	return readRecords(r, 1, 0, labels)
}

// ReadCIFAR100 parses a CIFAR-100 binary file:
// <1 coarse label byte><1 fine label byte><3072 pixel bytes>.
// The fine label is kept unless coarse is set, and labels filters on it.
func ReadCIFAR100(r io.Reader, coarse bool, labels ...int) (*Dataset, error) {
	if coarse {
		return readRecords(r, 2, 0, labels)
	}
	return readRecords(r, 2, 1, labels)
}

// resolveDir accepts either the directory holding subDir or subDir itself.
func resolveDir(dir, subDir string) string {
	if st, err := os.Stat(filepath.Join(dir, subDir)); err == nil && st.IsDir() {
		return filepath.Join(dir, subDir)
	}
	return dir
}

func loadFiles(paths []string, read func(io.Reader) (*Dataset, error)) (*Dataset, error) {
	var parts []*Dataset
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", p)
		}
		part, err := read(f)
		f.Close()
		if err != nil {
			return nil, errors.WithMessage(err, p)
		}
		slog.Debug("loaded cifar file", "path", p, "examples", part.Len())
		parts = append(parts, part)
	}
	return Concat(parts...), nil
}

// LoadCIFAR10 reads the train (data_batch_1..5.bin) or test (test_batch.bin)
// part of an extracted cifar-10-binary archive, keeping only the given labels
// when any are named.
func LoadCIFAR10(dir string, split Split, labels ...int) (*Dataset, error) {
	dir = resolveDir(dir, C10SubDir)
	var paths []string
	switch split {
	case Train:
		for i := 1; i <= c10Batches; i++ {
			paths = append(paths, filepath.Join(dir, fmt.Sprintf("data_batch_%d.bin", i)))
		}
	case Test:
		paths = append(paths, filepath.Join(dir, "test_batch.bin"))
	default:
		return nil, errors.Errorf("unknown split %q", split)
	}
	return loadFiles(paths, func(r io.Reader) (*Dataset, error) {
		return ReadCIFAR10(r, labels...)
	})
}

// LoadCIFAR100 reads train.bin or test.bin of an extracted cifar-100-binary
// archive by fine label, keeping only the given labels when any are named.
func LoadCIFAR100(dir string, split Split, labels ...int) (*Dataset, error) {
	if split != Train && split != Test {
		return nil, errors.Errorf("unknown split %q", split)
	}
	dir = resolveDir(dir, C100SubDir)
	return loadFiles([]string{filepath.Join(dir, string(split)+".bin")}, func(r io.Reader) (*Dataset, error) {
		return ReadCIFAR100(r, false, labels...)
	})
}
