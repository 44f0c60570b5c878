// Hand-written in the layout of MockGen output.
// Source: github.com/sarchlab/predprey/compute (interfaces: Platform,Device)

// Package mockcompute holds hand-checked-in mocks of the compute package's
// interfaces, in the same style as core/mock_sim_test.go's
// //go:generate mockgen -write_package_comment=false ... destination.
package mockcompute

import (
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"
	compute "github.com/sarchlab/predprey/compute"
)

// MockPlatform is a mock of the Platform interface.
type MockPlatform struct {
	ctrl     *gomock.Controller
	recorder *MockPlatformMockRecorder
}

// MockPlatformMockRecorder is the mock recorder for MockPlatform.
type MockPlatformMockRecorder struct {
	mock *MockPlatform
}

// NewMockPlatform creates a new mock instance.
func NewMockPlatform(ctrl *gomock.Controller) *MockPlatform {
	mock := &MockPlatform{ctrl: ctrl}
	mock.recorder = &MockPlatformMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockPlatform) EXPECT() *MockPlatformMockRecorder {
	return m.recorder
}

// Devices mocks base method.
func (m *MockPlatform) Devices() []compute.Device {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Devices")
	ret0, _ := ret[0].([]compute.Device)
	return ret0
}

// Devices indicates an expected call of Devices.
func (mr *MockPlatformMockRecorder) Devices() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Devices", reflect.TypeOf((*MockPlatform)(nil).Devices))
}

// MockDevice is a mock of the Device interface.
type MockDevice struct {
	ctrl     *gomock.Controller
	recorder *MockDeviceMockRecorder
}

// MockDeviceMockRecorder is the mock recorder for MockDevice.
type MockDeviceMockRecorder struct {
	mock *MockDevice
}

// NewMockDevice creates a new mock instance.
func NewMockDevice(ctrl *gomock.Controller) *MockDevice {
	mock := &MockDevice{ctrl: ctrl}
	mock.recorder = &MockDeviceMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockDevice) EXPECT() *MockDeviceMockRecorder {
	return m.recorder
}

// Info mocks base method.
func (m *MockDevice) Info() compute.DeviceInfo {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Info")
	ret0, _ := ret[0].(compute.DeviceInfo)
	return ret0
}

// Info indicates an expected call of Info.
func (mr *MockDeviceMockRecorder) Info() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Info", reflect.TypeOf((*MockDevice)(nil).Info))
}

// BuildProgram mocks base method.
func (m *MockDevice) BuildProgram(source, options string) (compute.Program, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "BuildProgram", source, options)
	ret0, _ := ret[0].(compute.Program)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// BuildProgram indicates an expected call of BuildProgram.
func (mr *MockDeviceMockRecorder) BuildProgram(source, options any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "BuildProgram", reflect.TypeOf((*MockDevice)(nil).BuildProgram), source, options)
}

// NewBuffer mocks base method.
func (m *MockDevice) NewBuffer(size int) (compute.Buffer, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NewBuffer", size)
	ret0, _ := ret[0].(compute.Buffer)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// NewBuffer indicates an expected call of NewBuffer.
func (mr *MockDeviceMockRecorder) NewBuffer(size any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewBuffer", reflect.TypeOf((*MockDevice)(nil).NewBuffer), size)
}

// NewCommandQueue mocks base method.
func (m *MockDevice) NewCommandQueue() compute.CommandQueue {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NewCommandQueue")
	ret0, _ := ret[0].(compute.CommandQueue)
	return ret0
}

// NewCommandQueue indicates an expected call of NewCommandQueue.
func (mr *MockDeviceMockRecorder) NewCommandQueue() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewCommandQueue", reflect.TypeOf((*MockDevice)(nil).NewCommandQueue))
}

// Release mocks base method.
func (m *MockDevice) Release() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Release")
	ret0, _ := ret[0].(error)
	return ret0
}

// Release indicates an expected call of Release.
func (mr *MockDeviceMockRecorder) Release() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Release", reflect.TypeOf((*MockDevice)(nil).Release))
}
