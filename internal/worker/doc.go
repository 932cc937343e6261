// Package worker 实现工作节点循环。
//
// 工作节点阻塞等待协调者（rank 0）的指令：收到工作项时计算结果并回复，
// 收到终止令牌时退出，不回复。
package worker
