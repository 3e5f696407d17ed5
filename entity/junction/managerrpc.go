package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
)

var (
	ErrAdaptiveProgram = errors.New("adaptive traffic light does not accept fixed programs")
)

// Register 将Junction管理器注册到sidecar
// 说明：注册信号灯服务处理器，支持gRPC-Connect协议
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
	)
}

// GetTrafficLight RPC接口：获取指定Junction的信号灯状态
// 功能：返回相位表、当前放行相位位置与距下一次放行的时间
// 说明：如果Junction不存在则返回错误，信控被禁用时返回空响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	req := in.Msg
	j, ok := m.data[req.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if j.trafficLight == nil {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  j.trafficLight.Get(),
		PhaseIndex:    j.trafficLight.Step(),
		TimeRemaining: j.trafficLight.RemainingTime(),
	}), nil
}

// SetTrafficLight RPC接口：自适应信控不接受固定程序
func (m *JunctionManager) SetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightRequest],
) (*connect.Response[mapv2.SetTrafficLightResponse], error) {
	return nil, connect.NewError(connect.CodeFailedPrecondition, ErrAdaptiveProgram)
}

// SetTrafficLightStatus RPC接口：设置指定Junction的信号灯状态
// 说明：true表示正常工作，false表示失效（全红）
func (m *JunctionManager) SetTrafficLightStatus(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightStatusRequest],
) (*connect.Response[mapv2.SetTrafficLightStatusResponse], error) {
	req := in.Msg
	j, ok := m.data[req.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if err := j.setStatus(req.Ok); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightStatusResponse{}), nil
}
