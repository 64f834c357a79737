package helper

import (
	crand "crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// Shuffler 提供数字 0-9 的随机排列（号码分配使用）
type Shuffler interface {
	Permutation() []int
}

// lockedRand 并发安全的 *rand.Rand 包装（rand.Rand 本身非并发安全）
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewShuffler 使用 crypto/rand 生成的种子创建洗牌器，种子不可被外部影响
func NewShuffler() Shuffler {
	return NewSeededShuffler(cryptoSeed())
}

// NewSeededShuffler 固定种子，仅用于测试复现
func NewSeededShuffler(seed uint64) Shuffler {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// Permutation 返回 0..9 的一个均匀随机排列（Fisher–Yates：i 从 9 递减到 1，与 [0,i] 中均匀选取的 j 交换）
func (l *lockedRand) Permutation() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FisherYates(l.r.Intn)
}

// FisherYates 对 0..9 执行洗牌；intn(n) 必须返回 [0,n) 内的均匀整数
func FisherYates(intn func(n int) int) []int {
	p := make([]int, 10)
	for i := range p {
		p[i] = i
	}
	for i := len(p) - 1; i >= 1; i-- {
		j := intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

func cryptoSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand 不可用时退化为时间种子
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
