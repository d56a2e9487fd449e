package timing

import "math"

// wardCluster Ward层次聚类
// 功能：自底向上合并簇，每次合并使簇内平方和增量最小的两个簇，直到剩下k个簇
// 参数：x-样本特征（按时间排序），k-目标簇数
// 返回：每个样本的簇标签，按首次出现顺序编号为0,1,2...
// 算法说明：
// 1. 初始距离为样本间欧氏距离的平方
// 2. 合并簇i、j后按Lance-Williams公式更新与其他簇k的距离：
//    d(k,ij) = ((ni+nk)d(k,i) + (nj+nk)d(k,j) - nk*d(i,j)) / (ni+nj+nk)
// 3. 距离相同时取下标最小的一对，保证结果确定
func wardCluster(x [][]float64, k int) []int {
	n := len(x)
	if n == 0 {
		return nil
	}
	k = max(1, min(k, n))
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range i {
			d := 0.
			for f := range x[i] {
				diff := x[i][f] - x[j][f]
				d += diff * diff
			}
			dist[i][j], dist[j][i] = d, d
		}
	}
	size := make([]float64, n)
	member := make([]int, n) // 样本 -> 所属簇（以簇中最小样本下标表示）
	active := make([]bool, n)
	for i := range n {
		size[i] = 1
		member[i] = i
		active[i] = true
	}
	for clusters := n; clusters > k; clusters-- {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := range n {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		ni, nj := size[bi], size[bj]
		for o := range n {
			if !active[o] || o == bi || o == bj {
				continue
			}
			no := size[o]
			d := ((ni+no)*dist[o][bi] + (nj+no)*dist[o][bj] - no*dist[bi][bj]) / (ni + nj + no)
			dist[o][bi], dist[bi][o] = d, d
		}
		size[bi] += nj
		active[bj] = false
		for s := range member {
			if member[s] == bj {
				member[s] = bi
			}
		}
	}
	return canonicalLabels(member)
}

// canonicalLabels 按首次出现顺序重新编号
func canonicalLabels(raw []int) []int {
	mapping := make(map[int]int)
	res := make([]int, len(raw))
	for i, r := range raw {
		l, ok := mapping[r]
		if !ok {
			l = len(mapping)
			mapping[r] = l
		}
		res[i] = l
	}
	return res
}

// enforceMinRun 保证每段连续标签不短于最小长度
// 功能：顺序扫描，若位置i不处于任何长度为m且全为其标签的窗口中，则并入前一个标签；
// 扫描后若第一段仍短于m且存在后续段，并入后一段
func enforceMinRun(labels []int, m int) []int {
	res := make([]int, len(labels))
	copy(res, labels)
	n := len(res)
	if m <= 1 || n <= 1 {
		return res
	}
	for i := 1; i < n; i++ {
		keep := false
		for j := max(0, i+1-m); j <= i && j+m <= n; j++ {
			all := true
			for p := j; p < j+m; p++ {
				if res[p] != res[i] {
					all = false
					break
				}
			}
			if all {
				keep = true
				break
			}
		}
		if !keep {
			res[i] = res[i-1]
		}
	}
	first := 1
	for first < n && res[first] == res[0] {
		first++
	}
	if first < m && first < n {
		for p := range first {
			res[p] = res[first]
		}
	}
	return canonicalLabels(res)
}
