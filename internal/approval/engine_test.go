package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

// stubDirectory 测试用组织目录，员工 -> 直属上级
type stubDirectory map[string]string

func (d stubDirectory) DirectManager(_ context.Context, userID string) (string, error) {
	return d[userID], nil
}

func saveTestWorkflow(t *testing.T, mgr *Manager, def *WorkflowDefinition) string {
	t.Helper()
	id, err := mgr.SaveWorkflow(context.Background(), def)
	require.NoError(t, err)
	return id
}

func sequentialDef(pageID string) *WorkflowDefinition {
	return &WorkflowDefinition{
		PageID:       pageID,
		Name:         "两级审批",
		WorkflowType: WorkflowSequential,
		Steps: []WorkflowStep{
			{StepOrder: 1, StepName: "直属上级审批", ApproverType: ApproverManager, RequiredApprovals: 1},
			{StepOrder: 2, StepName: "人事复核", ApproverType: ApproverUser, ApproverIDs: []string{"hr-1"}, RequiredApprovals: 1},
		},
	}
}

func TestSequentialManagerChainApproval(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))

	req, err := mgr.Instantiate(ctx, InstantiateInput{
		PageID:      "leave_request",
		RequesterID: "emp-1",
		EntityID:    "lv-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, 1, req.CurrentStep)
	require.True(t, strings.HasPrefix(req.RequestNo, "LR-"))

	// 第一步只有直属上级可投票
	can, err := mgr.CanApprove(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	require.True(t, can)
	can, err = mgr.CanApprove(ctx, req.ID, "hr-1")
	require.NoError(t, err)
	require.False(t, can)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved,
	}))

	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	require.Equal(t, 2, loaded.CurrentStep)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "hr-1", Decision: ActionApproved,
	}))

	loaded, err = loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
}

func TestParallelQuorumApproval(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "三人会签",
		WorkflowType: WorkflowParallel,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "会签",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"a", "b", "c"},
				RequiredApprovals: 2,
			},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{
		PageID:      "travel_request",
		RequesterID: "emp-1",
	})
	require.NoError(t, err)

	// 三人都拿到占位行
	rows, err := pendingRows(db, req.ID, 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// 第一票不满足票数，请求停留
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "a", Decision: ActionApproved}))
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)

	// 第二票满足 2/3，整体批准
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "b", Decision: ActionApproved}))
	loaded, err = loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, loaded.Status)

	// 迟到的第三票视为过期动作
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "c", Decision: ActionApproved})
	var stale *StaleActionError
	require.ErrorAs(t, err, &stale)
}

func TestRejectIsGlobalVeto(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "会签",
		WorkflowType: WorkflowParallel,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "会签",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"a", "b", "c"},
				RequiredApprovals: 2,
			},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "travel_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	// 拒绝必须填写意见
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "a", Decision: ActionRejected})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// 已有一票批准，单票拒绝仍立即终结
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "b", Decision: ActionApproved}))
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "a", Decision: ActionRejected, Comments: "预算不足",
	}))

	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, loaded.Status)
}

func TestDelegationAddsVoterWithoutVote(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	// 不能委托给自己，且必须指定受托人
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionDelegated})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionDelegated, DelegateTo: "mgr-1"})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "mgr-1", Decision: ActionDelegated, DelegateTo: "deputy-1",
	}))

	// 委托本身不计票，请求停留在第一步
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.CurrentStep)

	// 原审批人已出局，受托人接手
	can, err := mgr.CanApprove(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	require.False(t, can)
	can, err = mgr.CanApprove(ctx, req.ID, "deputy-1")
	require.NoError(t, err)
	require.True(t, can)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "deputy-1", Decision: ActionApproved,
	}))
	loaded, err = loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.CurrentStep)
}

func TestManualEscalationHandsOffToTarget(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "leave_request",
		Name:         "单步可升级",
		WorkflowType: WorkflowSequential,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "审批",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"a"},
				RequiredApprovals: 1,
				EscalationTo:      "boss-1",
			},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "a", Decision: ActionEscalated,
	}))

	// 升级对原操作人终结，自身不构成批准
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	can, err := mgr.CanApprove(ctx, req.ID, "a")
	require.NoError(t, err)
	require.False(t, can)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "boss-1", Decision: ActionApproved,
	}))
	loaded, err = loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, loaded.Status)
}

func TestEscalationWithoutTargetRejected(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "leave_request",
		Name:         "无升级目标",
		WorkflowType: WorkflowSequential,
		Steps: []WorkflowStep{
			{StepOrder: 1, StepName: "审批", ApproverType: ApproverUser, ApproverIDs: []string{"a"}, RequiredApprovals: 1},
		},
	})
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "a", Decision: ActionEscalated})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestReplayedVoteIsStale(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved}))

	// 同一操作人重放投票：步骤已前进，占位行不存在
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved})
	var stale *StaleActionError
	require.ErrorAs(t, err, &stale)

	// 局外人投票同样被拒
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "stranger", Decision: ActionApproved})
	require.ErrorAs(t, err, &stale)
}

func TestConcurrentApprovalsAdvanceStepOnce(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "或签加复核",
		WorkflowType: WorkflowSequential,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "或签",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"a", "b"},
				RequiredApprovals: 1,
			},
			{StepOrder: 2, StepName: "人事复核", ApproverType: ApproverUser, ApproverIDs: []string{"hr-1"}, RequiredApprovals: 1},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "travel_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	// 两个审批人同时投出满足票数的一票，只允许一票生效
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, actor := range []string{"a", "b"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			results <- mgr.SubmitAction(ctx, ActionInput{
				RequestID: req.ID, ActorID: actor, Decision: ActionApproved,
			})
		}(actor)
	}
	wg.Wait()
	close(results)

	var succeeded, stale int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var serr *StaleActionError
		require.True(t, errors.As(err, &serr), "非预期错误: %v", err)
		stale++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, stale)

	// 步骤恰好前进一次
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	require.Equal(t, 2, loaded.CurrentStep)

	// 第一步只有一票入账
	var approvals int64
	require.NoError(t, db.Model(&ApprovalAction{}).
		Where("request_id = ? AND step_order = ? AND action = ?", req.ID, 1, ActionApproved).
		Count(&approvals).Error)
	require.EqualValues(t, 1, approvals)

	// 第二步只生成一套占位行
	rows, err := pendingRows(db, req.ID, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "hr-1", rows[0].ApproverID)
}

func TestCancelPendingRequest(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(ctx, req.ID, "admin-1", "流程作废"))

	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)

	// 终态不再迁移
	err = mgr.Cancel(ctx, req.ID, "admin-1", "再次取消")
	var stale *StaleActionError
	require.ErrorAs(t, err, &stale)
	err = mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved})
	require.ErrorAs(t, err, &stale)
}

func TestInstantiateStalledWithoutManager(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "orphan-1"})
	require.NoError(t, err)

	// 审批人无法解析：请求保留但被阻滞，没有占位行
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	require.True(t, loaded.Stalled)
	require.NotEmpty(t, loaded.StallReason)

	rows, err := pendingRows(db, req.ID, 1)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestConditionalRoutingSkipsSteps(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "按金额路由",
		WorkflowType: WorkflowConditional,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "组长审批",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"lead-1"},
				RequiredApprovals: 1,
			},
			{
				StepOrder:         2,
				StepName:          "总监审批",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"director-1"},
				RequiredApprovals: 1,
				Conditions:        "{{estimated_cost}} >= 10000",
			},
		},
	})

	// 小额：第二步条件不命中，组长批准后直接整体批准
	small, err := mgr.Instantiate(ctx, InstantiateInput{
		PageID:      "travel_request",
		RequesterID: "emp-1",
		Payload:     map[string]any{"estimated_cost": 2000},
	})
	require.NoError(t, err)
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: small.ID, ActorID: "lead-1", Decision: ActionApproved}))
	loaded, err := loadRequest(db, small.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, loaded.Status)

	// 大额：进入总监审批
	big, err := mgr.Instantiate(ctx, InstantiateInput{
		PageID:      "travel_request",
		RequesterID: "emp-2",
		Payload:     map[string]any{"estimated_cost": 50000},
	})
	require.NoError(t, err)
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: big.ID, ActorID: "lead-1", Decision: ActionApproved}))
	loaded, err = loadRequest(db, big.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	require.Equal(t, 2, loaded.CurrentStep)
	can, err := mgr.CanApprove(ctx, big.ID, "director-1")
	require.NoError(t, err)
	require.True(t, can)
}

func TestBrokenConditionStallsInsteadOfFailingVote(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "按金额路由",
		WorkflowType: WorkflowConditional,
		Steps: []WorkflowStep{
			{
				StepOrder:         1,
				StepName:          "组长审批",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"lead-1"},
				RequiredApprovals: 1,
			},
			{
				StepOrder:         2,
				StepName:          "总监审批",
				ApproverType:      ApproverUser,
				ApproverIDs:       []string{"director-1"},
				RequiredApprovals: 1,
				Conditions:        "{{estimated_cost}} >= 10000",
			},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{
		PageID:      "travel_request",
		RequesterID: "emp-1",
		Payload:     map[string]any{"estimated_cost": 50000},
	})
	require.NoError(t, err)

	// 模拟保存校验之前写入的历史快照损坏
	require.NoError(t, db.Model(&WorkflowStep{}).
		Where("workflow_id = ? AND step_order = ?", req.WorkflowID, 2).
		Update("conditions", "{{estimated_cost}} >=").Error)

	// 票照常入账，路由失败只阻滞请求
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{
		RequestID: req.ID, ActorID: "lead-1", Decision: ActionApproved,
	}))

	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, loaded.Status)
	require.Equal(t, 1, loaded.CurrentStep)
	require.True(t, loaded.Stalled)
	require.NotEmpty(t, loaded.StallReason)

	var approvals int64
	require.NoError(t, db.Model(&ApprovalAction{}).
		Where("request_id = ? AND approver_id = ? AND action = ?", req.ID, "lead-1", ActionApproved).
		Count(&approvals).Error)
	require.EqualValues(t, 1, approvals)
}

func TestGetRequestDetailsAndLedgerOrder(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved}))

	details, err := mgr.GetRequestDetails(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, details.Request.ID)
	require.Len(t, details.Steps, 2)

	// 账本：第一步已批准 + 第二步占位
	require.Len(t, details.Actions, 2)
	require.Equal(t, ActionApproved, details.Actions[0].Action)
	require.Equal(t, "mgr-1", details.Actions[0].ApproverID)
	require.Equal(t, "mgr-1", details.Actions[0].ActedBy)
	require.Equal(t, ActionPending, details.Actions[1].Action)
	require.Equal(t, "hr-1", details.Actions[1].ApproverID)
}

func TestListPendingForApprover(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1", "emp-2": "mgr-1"}))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, sequentialDef("leave_request"))

	first, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)
	second, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-2"})
	require.NoError(t, err)

	pending, err := mgr.ListPendingForApprover(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// 处理一件后待办减少
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: first.ID, ActorID: "mgr-1", Decision: ActionApproved}))
	pending, err = mgr.ListPendingForApprover(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	// 前进后的步骤归属 hr-1
	pending, err = mgr.ListPendingForApprover(ctx, "hr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
}

func TestTerminalEventPublished(t *testing.T) {
	db := openTestDB(t)
	bus := NewEventBus(nil)
	mgr := NewManager(db, WithEventBus(bus))
	ctx := context.Background()

	saveTestWorkflow(t, mgr, &WorkflowDefinition{
		PageID:       "leave_request",
		Name:         "单步",
		WorkflowType: WorkflowSequential,
		Steps: []WorkflowStep{
			{StepOrder: 1, StepName: "审批", ApproverType: ApproverUser, ApproverIDs: []string{"a"}, RequiredApprovals: 1},
		},
	})

	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1", EntityID: "lv-9"})
	require.NoError(t, err)

	events, cancel := mgr.Subscribe(req.ID)
	require.NotNil(t, events)
	defer cancel()

	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "a", Decision: ActionApproved}))

	select {
	case evt := <-events:
		require.Equal(t, StatusApproved, evt.Status)
		require.Equal(t, "lv-9", evt.EntityID)
		require.Equal(t, "a", evt.ActorID)
	case <-time.After(time.Second):
		t.Fatal("等待终态事件超时")
	}
}
